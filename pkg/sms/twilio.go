// Package sms sends sequence and compliance texts through Twilio.
package sms

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/jordanlanch/outreach/pkg/delivery"
)

// Twilio error codes that mean the number can never receive this message.
const (
	codeInvalidTo       = 21211
	codeUnsubscribed    = 21610
	codeNotMobile       = 21614
	codeInvalidToRegion = 21612
)

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// TwilioSender delivers SMS through the Twilio Messages API.
type TwilioSender struct {
	fromNumber string
	messages   messageCreator
}

// NewTwilioSender creates a sender authenticated with the account credentials.
func NewTwilioSender(accountSid, authToken, fromNumber string) *TwilioSender {
	c := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})
	return &TwilioSender{fromNumber: fromNumber, messages: c.Api}
}

// Send implements delivery.Sender.
func (t *TwilioSender) Send(ctx context.Context, msg delivery.Message) (delivery.Result, error) {
	if err := ctx.Err(); err != nil {
		return delivery.Result{}, err
	}

	params := &api.CreateMessageParams{}
	params.SetBody(msg.Body)
	params.SetFrom(t.fromNumber)
	params.SetTo(msg.To)

	resp, err := t.messages.CreateMessage(params)
	if err != nil {
		return delivery.Result{}, classify(err)
	}
	var sid string
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	return delivery.Result{ProviderMessageID: sid}, nil
}

func classify(err error) error {
	var restErr *client.TwilioRestError
	if errors.As(err, &restErr) {
		wrapped := fmt.Errorf("twilio error %d: %s", restErr.Code, restErr.Message)
		switch restErr.Code {
		case codeInvalidTo, codeUnsubscribed, codeNotMobile, codeInvalidToRegion:
			return delivery.Permanent(wrapped)
		}
		return wrapped
	}
	return fmt.Errorf("failed to send sms: %w", err)
}
