package delivery

import (
	"context"

	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/prospects"
	"github.com/jordanlanch/outreach/pkg/templates"
)

// Channel knows how to address, render and send one kind of message.
type Channel interface {
	Kind() domain.Channel
	// Recipient returns the prospect's address on this channel, or "".
	Recipient(p prospects.Prospect) string
	Render(t *templates.Template, p prospects.Prospect) Message
	Send(ctx context.Context, msg Message) (Result, error)
}

// EmailChannel sends through an email provider.
type EmailChannel struct {
	Sender Sender
}

// Kind implements Channel.
func (EmailChannel) Kind() domain.Channel { return domain.ChannelEmail }

// Recipient implements Channel.
func (EmailChannel) Recipient(p prospects.Prospect) string { return p.Email }

// Render implements Channel.
func (c EmailChannel) Render(t *templates.Template, p prospects.Prospect) Message {
	r := templates.Render(t, p.Variables())
	return Message{
		Channel: domain.ChannelEmail,
		To:      c.Recipient(p),
		ToName:  p.FullName(),
		Subject: r.Subject,
		Body:    r.Body,
	}
}

// Send implements Channel.
func (c EmailChannel) Send(ctx context.Context, msg Message) (Result, error) {
	return c.Sender.Send(ctx, msg)
}

// SMSChannel sends through an SMS provider. Subjects are dropped.
type SMSChannel struct {
	Sender Sender
}

// Kind implements Channel.
func (SMSChannel) Kind() domain.Channel { return domain.ChannelSMS }

// Recipient implements Channel.
func (SMSChannel) Recipient(p prospects.Prospect) string { return p.Phone }

// Render implements Channel.
func (c SMSChannel) Render(t *templates.Template, p prospects.Prospect) Message {
	r := templates.Render(t, p.Variables())
	return Message{
		Channel: domain.ChannelSMS,
		To:      c.Recipient(p),
		ToName:  p.FullName(),
		Body:    r.Body,
	}
}

// Send implements Channel.
func (c SMSChannel) Send(ctx context.Context, msg Message) (Result, error) {
	return c.Sender.Send(ctx, msg)
}
