// Package delivery renders sequence steps into messages and hands them to
// the email and SMS providers.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/jordanlanch/outreach/pkg/domain"
)

// ErrPermanent marks a send that will never succeed for this recipient
// (hard bounce, invalid or unsubscribed number). Anything else is transient.
var ErrPermanent = errors.New("permanent delivery failure")

// ErrNoRecipient is returned when the prospect has no identity for the channel.
var ErrNoRecipient = errors.New("prospect has no recipient for channel")

// Message is one outbound message, already rendered.
type Message struct {
	Channel domain.Channel
	To      string
	ToName  string
	Subject string
	Body    string
}

// Result is what the provider reported for an accepted send.
type Result struct {
	ProviderMessageID string
}

// Sender delivers a rendered message through one provider.
type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) (Result, error)

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, msg Message) (Result, error) {
	return f(ctx, msg)
}

// Permanent wraps err so IsPermanent reports true.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
