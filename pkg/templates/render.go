package templates

import (
	"strings"

	"github.com/jordanlanch/outreach/pkg/domain"
)

// Rendered is a template expanded for one recipient, footer included.
type Rendered struct {
	Subject string
	Body    string
}

// Render expands t with vars and appends the compliance footer: after a blank
// line for email, on its own line for SMS.
func Render(t *Template, vars map[string]string) Rendered {
	body := strings.TrimRight(Expand(t.Body, vars), " \n")
	sep := "\n"
	if t.Channel == domain.ChannelEmail {
		sep = "\n\n"
	}
	return Rendered{
		Subject: strings.TrimSpace(Expand(t.Subject, vars)),
		Body:    body + sep + t.ComplianceFooter,
	}
}
