package delivery

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/logger"
)

// Adapter routes messages to their channel, pacing each channel with its own
// token bucket so a burst of due enrollments cannot flood a provider.
type Adapter struct {
	channels map[domain.Channel]Channel
	limiters map[domain.Channel]*rate.Limiter
	log      logger.Logger
}

// NewAdapter creates an adapter over channels. Channels are unpaced until
// SetRate is called.
func NewAdapter(log logger.Logger, channels ...Channel) *Adapter {
	a := &Adapter{
		channels: make(map[domain.Channel]Channel, len(channels)),
		limiters: make(map[domain.Channel]*rate.Limiter, len(channels)),
		log:      log,
	}
	for _, c := range channels {
		a.channels[c.Kind()] = c
	}
	return a
}

// SetRate paces kind at perSecond messages per second with the given burst.
// A non-positive rate removes the limit.
func (a *Adapter) SetRate(kind domain.Channel, perSecond float64, burst int) {
	if perSecond <= 0 {
		delete(a.limiters, kind)
		return
	}
	if burst < 1 {
		burst = 1
	}
	a.limiters[kind] = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Channel returns the channel registered for kind.
func (a *Adapter) Channel(kind domain.Channel) (Channel, bool) {
	c, ok := a.channels[kind]
	return c, ok
}

// Send waits for the channel's pacing budget and sends msg.
func (a *Adapter) Send(ctx context.Context, msg Message) (Result, error) {
	c, ok := a.channels[msg.Channel]
	if !ok {
		return Result{}, fmt.Errorf("no sender configured for channel %q", msg.Channel)
	}
	if msg.To == "" {
		return Result{}, ErrNoRecipient
	}
	if l, ok := a.limiters[msg.Channel]; ok {
		if err := l.Wait(ctx); err != nil {
			return Result{}, fmt.Errorf("waiting for %s send budget: %w", msg.Channel, err)
		}
	}

	res, err := c.Send(ctx, msg)
	if err != nil {
		a.log.Warn("delivery failed",
			"channel", msg.Channel,
			"permanent", IsPermanent(err),
			"error", err,
		)
		return Result{}, err
	}
	a.log.Debug("message sent", "channel", msg.Channel, "provider_message_id", res.ProviderMessageID)
	return res, nil
}
