// Package messaging delivers replies to Instagram subscribers through ManyChat and alerts the coach by SMS.
package messaging

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by constructors when required credentials are missing.
var ErrNotConfigured = errors.New("messaging service not configured")

// Reply is one outbound message for a subscriber.
type Reply struct {
	SubscriberID string
	IGUsername   string
	Text         string
}

// Service pushes a generated reply back to the chat platform.
type Service interface {
	SendReply(ctx context.Context, r Reply) error
}

// Notifier alerts the coach about something that needs attention.
type Notifier interface {
	Notify(ctx context.Context, body string) error
}
