// Package store provides the dedup repos for inbound webhooks and outbound deliveries.
package store

import (
	"time"
)

// DedupRecord represents an inbound webhook deduplication record.
type DedupRecord struct {
	MessageID    string     `json:"message_id"`
	SubscriberID string     `json:"subscriber_id"`
	ReceivedAt   time.Time  `json:"received_at"`
	ProcessedAt  *time.Time `json:"processed_at"`
}

// DedupRepo defines the interface for inbound webhook deduplication.
type DedupRepo interface {
	// IsDuplicate checks if a message ID has already been recorded.
	IsDuplicate(messageID string) (bool, error)

	// RecordInbound inserts a new inbound message record. Returns false if the
	// message was already recorded (duplicate).
	RecordInbound(messageID, subscriberID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(messageID string) error
}

// DeliveryDedupRepo guards the outbound delivery boundary.
type DeliveryDedupRepo interface {
	// ClaimDelivery records key before a send is attempted. It returns false if the key
	// was claimed before, meaning an earlier attempt may already have delivered.
	ClaimDelivery(key string, scheduleID int64) (bool, error)
}
