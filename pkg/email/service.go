// Package email sends sequence emails through SendGrid.
package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/jordanlanch/outreach/pkg/delivery"
	"github.com/jordanlanch/outreach/pkg/logger"
)

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Service handles email sending
type Service struct {
	fromEmail   string
	fromName    string
	client      sendClient
	useSendGrid bool
	log         logger.Logger
}

// NewService creates a new email service.
// If sendGridAPIKey is provided, emails will be sent via SendGrid.
// Otherwise, emails are only logged (development mode).
func NewService(fromEmail, fromName, sendGridAPIKey string, log logger.Logger) *Service {
	s := &Service{
		fromEmail:   fromEmail,
		fromName:    fromName,
		useSendGrid: sendGridAPIKey != "",
		log:         log,
	}
	if s.useSendGrid {
		s.client = sendgrid.NewSendClient(sendGridAPIKey)
		log.Info("email service initialized with SendGrid")
	} else {
		log.Warn("email service in console-only mode (set SENDGRID_API_KEY for production)")
	}
	return s
}

// Send implements delivery.Sender.
func (s *Service) Send(ctx context.Context, msg delivery.Message) (delivery.Result, error) {
	if !s.useSendGrid {
		return delivery.LogSender{Log: s.log}.Send(ctx, msg)
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, htmlBody(msg.Body))

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return delivery.Result{}, fmt.Errorf("failed to send email: %w", err)
	}
	if err := classify(response.StatusCode, response.Body); err != nil {
		return delivery.Result{}, err
	}

	return delivery.Result{ProviderMessageID: messageID(response.Headers)}, nil
}

// classify maps a SendGrid status to a delivery error. 400 and 413 are
// rejections of the message itself; everything else may succeed later.
func classify(status int, body string) error {
	if status < 400 {
		return nil
	}
	err := fmt.Errorf("sendgrid returned error status %d: %s", status, body)
	if status == 400 || status == 413 {
		return delivery.Permanent(err)
	}
	return err
}

func messageID(headers map[string][]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "X-Message-Id") && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func htmlBody(plain string) string {
	paragraphs := strings.Split(plain, "\n\n")
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, p := range paragraphs {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(escape(p), "\n", "<br>"))
		b.WriteString("</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;")

func escape(s string) string {
	return htmlEscaper.Replace(s)
}
