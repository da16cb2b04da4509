// Package templates validates, versions and renders channel-typed message templates.
package templates

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jordanlanch/outreach/pkg/domain"
)

// SMSSegmentLength is the single-segment GSM limit used for length guidance.
const SMSSegmentLength = 160

// multipart SMS segments carry a 7 character UDH.
const smsMultipartLength = 153

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// KnownVariables are the placeholders a prospect can fill.
var KnownVariables = map[string]bool{
	"first_name": true,
	"last_name":  true,
	"full_name":  true,
	"email":      true,
	"phone":      true,
	"company":    true,
	"title":      true,
	"city":       true,
	"state":      true,
	"country":    true,
	"industry":   true,
}

// Input is the editable part of a template.
type Input struct {
	Name             string         `json:"name"`
	Channel          domain.Channel `json:"channel"`
	Subject          string         `json:"subject,omitempty"`
	Body             string         `json:"body"`
	ComplianceFooter string         `json:"compliance_footer"`
	Active           *bool          `json:"active,omitempty"`
}

// Validate checks in against the channel rules and returns every violation at
// once. Warnings are returned even when validation passes.
func Validate(in Input) ([]string, error) {
	verr := &domain.ValidationError{}

	if strings.TrimSpace(in.Name) == "" {
		verr.Add("name", "required")
	}
	if !in.Channel.Valid() {
		verr.Add("channel", "must be email or sms")
	}
	if strings.TrimSpace(in.Body) == "" {
		verr.Add("body", "required")
	}
	if strings.TrimSpace(in.ComplianceFooter) == "" {
		verr.Add("complianceFooter", "required")
	}

	switch in.Channel {
	case domain.ChannelEmail:
		if strings.TrimSpace(in.Subject) == "" {
			verr.Add("subject", "required for email")
		}
	case domain.ChannelSMS:
		if n := utf8.RuneCountInString(in.Body) + 1 + utf8.RuneCountInString(in.ComplianceFooter); n > SMSSegmentLength {
			verr.Warn(fmt.Sprintf("sms body with footer is %d characters (%d segments)", n, Segments(n)))
		}
	}

	for _, name := range Variables(in.Subject + " " + in.Body) {
		if !KnownVariables[name] {
			verr.Warn(fmt.Sprintf("unknown variable {{%s}} renders empty", name))
		}
	}

	return verr.Warnings, verr.ErrOrNil()
}

// Segments returns how many SMS segments n characters need.
func Segments(n int) int {
	if n <= SMSSegmentLength {
		return 1
	}
	return (n + smsMultipartLength - 1) / smsMultipartLength
}

// Variables lists the distinct placeholder names used in text, sorted.
func Variables(text string) []string {
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		seen[m[1]] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Expand substitutes placeholders from vars. Missing values render empty.
func Expand(text string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		return vars[placeholder.FindStringSubmatch(m)[1]]
	})
}
