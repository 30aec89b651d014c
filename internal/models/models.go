// Package models defines the core data structures for Shanbot.
//
// It includes the relational records (users, messages, scheduled responses, pending reviews),
// the ManyChat webhook payload and the JSON envelope shared by every API response.
package models

import (
	"errors"
	"strings"
	"time"
)

// ScheduleStatus is the lifecycle state of a scheduled response.
type ScheduleStatus string

const (
	// ScheduleStatusScheduled is waiting for its send time.
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	// ScheduleStatusSent was delivered.
	ScheduleStatusSent ScheduleStatus = "sent"
	// ScheduleStatusFailed could not be delivered and will not be retried.
	ScheduleStatusFailed ScheduleStatus = "failed"
)

// IsValidScheduleStatus checks if the given status is known.
func IsValidScheduleStatus(s ScheduleStatus) bool {
	switch s {
	case ScheduleStatusScheduled, ScheduleStatusSent, ScheduleStatusFailed:
		return true
	default:
		return false
	}
}

// ReviewStatus is the lifecycle state of a reply waiting for a human.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// IsValidReviewStatus checks if the given status is known.
func IsValidReviewStatus(s ReviewStatus) bool {
	switch s {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusRejected:
		return true
	default:
		return false
	}
}

// MaxResponseLength bounds a reply body; ManyChat rejects very long field values.
const MaxResponseLength = 2000

// Error variables for validation.
var (
	ErrEmptySubscriberID    = errors.New("subscriber id cannot be empty")
	ErrEmptyResponseText    = errors.New("response text is required")
	ErrResponseTooLong      = errors.New("response text exceeds maximum length")
	ErrMissingIncomingTime  = errors.New("incoming message timestamp is required")
	ErrNegativeDelay        = errors.New("calculated delay cannot be negative")
	ErrInvalidScheduleState = errors.New("invalid schedule status")
	ErrEmptyConversation    = errors.New("CONVERSATION custom field is empty")
)

// ScheduledResponse is one queued outbound reply.
type ScheduledResponse struct {
	ScheduleID               int64          `json:"schedule_id"`
	UserIGUsername           string         `json:"user_ig_username,omitempty"`
	UserSubscriberID         string         `json:"user_subscriber_id"`
	ResponseText             string         `json:"response_text"`
	IncomingMessageText      string         `json:"incoming_message_text,omitempty"`
	IncomingMessageTimestamp time.Time      `json:"incoming_message_timestamp"`
	CalculatedDelayMinutes   int            `json:"calculated_delay_minutes"`
	ScheduledSendTime        time.Time      `json:"scheduled_send_time"`
	Status                   ScheduleStatus `json:"status"`
	SentAt                   *time.Time     `json:"sent_at,omitempty"`
	LastError                string         `json:"last_error,omitempty"`
	CreatedAt                time.Time      `json:"created_at"`
	UpdatedAt                time.Time      `json:"updated_at"`
}

// Validate checks the fields a caller must supply before scheduling.
func (r *ScheduledResponse) Validate() error {
	if strings.TrimSpace(r.UserSubscriberID) == "" {
		return ErrEmptySubscriberID
	}
	if strings.TrimSpace(r.ResponseText) == "" {
		return ErrEmptyResponseText
	}
	if len(r.ResponseText) > MaxResponseLength {
		return ErrResponseTooLong
	}
	if r.IncomingMessageTimestamp.IsZero() {
		return ErrMissingIncomingTime
	}
	if r.CalculatedDelayMinutes < 0 {
		return ErrNegativeDelay
	}
	if r.Status != "" && !IsValidScheduleStatus(r.Status) {
		return ErrInvalidScheduleState
	}
	return nil
}

// PendingReview is a generated reply waiting for the coach to approve it.
type PendingReview struct {
	ReviewID                 string       `json:"review_id"`
	SubscriberID             string       `json:"subscriber_id"`
	IGUsername               string       `json:"ig_username,omitempty"`
	IncomingMessageText      string       `json:"incoming_message_text"`
	IncomingMessageTimestamp time.Time    `json:"incoming_message_timestamp"`
	ProposedResponse         string       `json:"proposed_response"`
	FinalResponse            string       `json:"final_response,omitempty"`
	Status                   ReviewStatus `json:"status"`
	ScheduleID               *int64       `json:"schedule_id,omitempty"`
	CreatedAt                time.Time    `json:"created_at"`
	ReviewedAt               *time.Time   `json:"reviewed_at,omitempty"`
}

// User mirrors one Instagram subscriber.
type User struct {
	SubscriberID string    `json:"subscriber_id"`
	IGUsername   string    `json:"ig_username,omitempty"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	LastMessage  string    `json:"last_message,omitempty"`
}

// StoredMessage is one row of the relational message log.
type StoredMessage struct {
	ID           int64     `json:"id"`
	SubscriberID string    `json:"subscriber_id"`
	IGUsername   string    `json:"ig_username,omitempty"`
	Type         string    `json:"type"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
}

// ManyChatFields are the subscriber custom fields Shanbot reads from a webhook.
type ManyChatFields struct {
	Conversation      string `json:"CONVERSATION"`
	InstagramUsername string `json:"INSTAGRAM_USERNAME,omitempty"`
}

// ManyChatWebhook is the body ManyChat posts for every new DM.
type ManyChatWebhook struct {
	ID           string         `json:"id"`
	CustomFields ManyChatFields `json:"custom_fields"`
	Timestamp    string         `json:"timestamp,omitempty"`
}

// Validate checks that the webhook identifies a subscriber and carries a conversation.
func (w *ManyChatWebhook) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return ErrEmptySubscriberID
	}
	if strings.TrimSpace(w.CustomFields.Conversation) == "" {
		return ErrEmptyConversation
	}
	return nil
}

// ReviewDecision is the optional body of an approve call; Response overrides the proposed text.
type ReviewDecision struct {
	Response string `json:"response,omitempty"`
}

// WebhookResult reports what happened to an inbound message.
type WebhookResult struct {
	Mode         string `json:"mode"`
	MessageType  string `json:"message_type,omitempty"`
	ScheduleID   int64  `json:"schedule_id,omitempty"`
	ReviewID     string `json:"review_id,omitempty"`
	DelayMinutes int    `json:"delay_minutes,omitempty"`
	Duplicate    bool   `json:"duplicate,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusScheduled indicates a reply was scheduled for delivery.
	APIStatusScheduled APIStatus = "scheduled"
	// APIStatusQueued indicates a reply is waiting for manual review.
	APIStatusQueued APIStatus = "queued"
	// APIStatusRecorded indicates a message was recorded without producing a reply.
	APIStatusRecorded APIStatus = "recorded"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithResult(result).Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithMessage(message).WithResult(result).Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusError).WithMessage(message).Build()
}

// Scheduled creates a scheduled API response carrying the webhook result.
func Scheduled(result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusScheduled).WithResult(result).Build()
}

// Queued creates a queued-for-review API response.
func Queued(result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusQueued).WithResult(result).Build()
}

// Recorded creates a recorded API response.
func Recorded(result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusRecorded).WithResult(result).Build()
}
