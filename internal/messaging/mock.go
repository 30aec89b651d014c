package messaging

import (
	"context"
	"sync"
)

// MockService records replies and notifications instead of sending them.
type MockService struct {
	mu      sync.Mutex
	Replies []Reply
	Notes   []string
	Err     error
}

// SendReply records r, or returns m.Err when set.
func (m *MockService) SendReply(ctx context.Context, r Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Replies = append(m.Replies, r)
	return nil
}

// Notify records body, or returns m.Err when set.
func (m *MockService) Notify(ctx context.Context, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Notes = append(m.Notes, body)
	return nil
}

// SentReplies returns a copy of the recorded replies.
func (m *MockService) SentReplies() []Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Reply(nil), m.Replies...)
}

// Notifications returns a copy of the recorded notifications.
func (m *MockService) Notifications() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Notes...)
}

var (
	_ Service  = (*MockService)(nil)
	_ Notifier = (*MockService)(nil)
	_ Service  = (*ManyChatService)(nil)
	_ Notifier = (*TwilioNotifier)(nil)
)
