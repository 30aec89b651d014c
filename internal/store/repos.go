package store

import (
	"time"

	"github.com/BTreeMap/Shanbot/internal/models"
)

// UserRepo keeps one row per Instagram subscriber.
type UserRepo interface {
	// UpsertUser records that the subscriber was seen at seenAt. first_seen is only set on insert;
	// an empty igUsername never overwrites a known one.
	UpsertUser(subscriberID, igUsername, lastMessage string, seenAt time.Time) error
	GetUser(subscriberID string) (*models.User, error)
}

// MessageRepo is the append-only relational message log.
type MessageRepo interface {
	SaveMessage(m models.StoredMessage) (int64, error)
	// ListMessages returns the most recent limit messages for a subscriber in chronological order.
	ListMessages(subscriberID string, limit int) ([]models.StoredMessage, error)
}

// ScheduledResponseRepo persists replies waiting to be dispatched.
type ScheduledResponseRepo interface {
	// CreateScheduledResponse inserts rec with status scheduled and returns its monotonic id.
	CreateScheduledResponse(rec models.ScheduledResponse) (int64, error)
	GetScheduledResponse(id int64) (*models.ScheduledResponse, error)

	// ListDueScheduledResponses returns up to limit scheduled records whose send time is not
	// after now, ordered by scheduled_send_time then schedule_id.
	ListDueScheduledResponses(now time.Time, limit int) ([]models.ScheduledResponse, error)

	// ListScheduledResponses returns the newest records first. An empty status matches all.
	ListScheduledResponses(status models.ScheduleStatus, limit int) ([]models.ScheduledResponse, error)

	// MarkScheduledResponseSent and MarkScheduledResponseFailed move a scheduled record to its
	// terminal state. They return ErrConflict if the record already left scheduled.
	MarkScheduledResponseSent(id int64, sentAt time.Time) error
	MarkScheduledResponseFailed(id int64, errMsg string) error
}

// ReviewRepo persists replies waiting for the coach.
type ReviewRepo interface {
	// CreateReview inserts r with status pending. An empty ReviewID is generated.
	CreateReview(r models.PendingReview) (string, error)
	GetReview(id string) (*models.PendingReview, error)
	// ListReviews returns the newest reviews first. An empty status matches all.
	ListReviews(status models.ReviewStatus, limit int) ([]models.PendingReview, error)
	// ResolveReview closes a pending review. It returns ErrConflict if it is no longer pending.
	ResolveReview(id string, status models.ReviewStatus, finalResponse string, scheduleID *int64, reviewedAt time.Time) error
}
