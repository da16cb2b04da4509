package delivery

import (
	"context"

	"github.com/google/uuid"

	"github.com/jordanlanch/outreach/pkg/logger"
)

// LogSender writes messages to the log instead of sending them. Used when
// provider credentials are not configured.
type LogSender struct {
	Log logger.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, msg Message) (Result, error) {
	id := "log-" + uuid.NewString()
	s.Log.Info("message not sent (development mode)",
		"channel", msg.Channel,
		"to", msg.To,
		"subject", msg.Subject,
		"body_length", len(msg.Body),
		"provider_message_id", id,
	)
	return Result{ProviderMessageID: id}, nil
}
