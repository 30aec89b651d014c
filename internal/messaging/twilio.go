package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// smsLimit keeps coach alerts inside a few SMS segments.
const smsLimit = 480

var nonDigits = regexp.MustCompile(`[^0-9]`)

// messageCreator is the part of the Twilio REST API the notifier uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioOpts holds the Twilio credentials and numbers.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

// TwilioNotifier texts the coach, e.g. when a reply is waiting for review.
type TwilioNotifier struct {
	api  messageCreator
	from string
	to   string
}

// NewTwilioNotifier returns ErrNotConfigured unless every field of o is set.
func NewTwilioNotifier(o TwilioOpts) (*TwilioNotifier, error) {
	if o.AccountSID == "" || o.AuthToken == "" {
		return nil, fmt.Errorf("%w: account SID and auth token must be provided", ErrNotConfigured)
	}
	from, err := CanonicalPhone(o.From)
	if err != nil {
		return nil, fmt.Errorf("%w: from number: %v", ErrNotConfigured, err)
	}
	to, err := CanonicalPhone(o.To)
	if err != nil {
		return nil, fmt.Errorf("%w: coach number: %v", ErrNotConfigured, err)
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{Username: o.AccountSID, Password: o.AuthToken})
	return &TwilioNotifier{api: client.Api, from: from, to: to}, nil
}

// CanonicalPhone strips formatting from a phone number and returns it in +E.164 form.
func CanonicalPhone(number string) (string, error) {
	if number == "" {
		return "", fmt.Errorf("phone number cannot be empty")
	}
	digits := nonDigits.ReplaceAllString(number, "")
	if len(digits) < 6 {
		return "", fmt.Errorf("invalid phone number %q: too short (minimum 6 digits required)", number)
	}
	return "+" + digits, nil
}

// Notify sends body to the coach, truncated to smsLimit runes.
func (n *TwilioNotifier) Notify(ctx context.Context, body string) error {
	if r := []rune(body); len(r) > smsLimit {
		body = string(r[:smsLimit-1]) + "…"
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.to)
	params.SetFrom(n.from)
	params.SetBody(body)

	msg, err := n.api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioNotifier.Notify: send failed", "to", n.to, "error", err)
		return fmt.Errorf("failed to text coach: %w", err)
	}
	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	slog.Debug("TwilioNotifier.Notify: coach alerted", "sid", sid)
	return nil
}
