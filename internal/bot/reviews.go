package bot

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/Shanbot/internal/models"
	"github.com/BTreeMap/Shanbot/internal/store"
)

// ApproveReview schedules the proposed reply, or finalText when the coach edited it, and closes
// the review. The delay is computed from the original message time, so a reply approved late
// becomes due at once.
func (e *Engine) ApproveReview(reviewID, finalText string) (models.PendingReview, error) {
	e.reviewMu.Lock()
	defer e.reviewMu.Unlock()

	r, err := e.pendingReview(reviewID)
	if err != nil {
		return models.PendingReview{}, err
	}
	text := strings.TrimSpace(finalText)
	if text == "" {
		text = r.ProposedResponse
	}

	scheduleID, err := e.planner.Schedule(models.ScheduledResponse{
		UserIGUsername:           r.IGUsername,
		UserSubscriberID:         r.SubscriberID,
		ResponseText:             text,
		IncomingMessageText:      r.IncomingMessageText,
		IncomingMessageTimestamp: r.IncomingMessageTimestamp,
	})
	if err != nil {
		return models.PendingReview{}, fmt.Errorf("schedule approved reply: %w", err)
	}

	now := e.now().UTC()
	if err := e.store.ResolveReview(reviewID, models.ReviewStatusApproved, text, &scheduleID, now); err != nil {
		slog.Error("Engine.ApproveReview: resolve failed after scheduling", "reviewID", reviewID, "scheduleID", scheduleID, "error", err)
		return models.PendingReview{}, err
	}
	r.Status = models.ReviewStatusApproved
	r.FinalResponse = text
	r.ScheduleID = &scheduleID
	r.ReviewedAt = &now
	slog.Info("Engine.ApproveReview: review approved", "reviewID", reviewID, "scheduleID", scheduleID)
	return *r, nil
}

// RejectReview closes a review without sending anything.
func (e *Engine) RejectReview(reviewID string) (models.PendingReview, error) {
	e.reviewMu.Lock()
	defer e.reviewMu.Unlock()

	r, err := e.pendingReview(reviewID)
	if err != nil {
		return models.PendingReview{}, err
	}
	now := e.now().UTC()
	if err := e.store.ResolveReview(reviewID, models.ReviewStatusRejected, "", nil, now); err != nil {
		return models.PendingReview{}, err
	}
	r.Status = models.ReviewStatusRejected
	r.ReviewedAt = &now
	slog.Info("Engine.RejectReview: review rejected", "reviewID", reviewID)
	return *r, nil
}

func (e *Engine) pendingReview(id string) (*models.PendingReview, error) {
	r, err := e.store.GetReview(id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.ReviewStatusPending {
		return nil, fmt.Errorf("review %s is %s: %w", id, r.Status, store.ErrConflict)
	}
	return r, nil
}
