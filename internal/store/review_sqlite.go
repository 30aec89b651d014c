package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/Shanbot/internal/models"
	"github.com/BTreeMap/Shanbot/internal/util"
)

// Compile-time check that SQLiteStore implements ReviewRepo.
var _ ReviewRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) CreateReview(r models.PendingReview) (string, error) {
	if r.ReviewID == "" {
		r.ReviewID = util.GenerateReviewID()
	}
	_, err := s.db.Exec(
		`INSERT INTO pending_reviews (review_id, subscriber_id, ig_username, incoming_message_text,
		   incoming_message_timestamp, proposed_response, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)`,
		r.ReviewID, r.SubscriberID, nilIfEmpty(r.IGUsername), r.IncomingMessageText,
		r.IncomingMessageTimestamp.UTC(), r.ProposedResponse, utcNow(),
	)
	if err != nil {
		slog.Error("SQLiteStore.CreateReview failed", "error", err, "subscriberID", r.SubscriberID)
		return "", fmt.Errorf("create review: %w", err)
	}
	slog.Debug("SQLiteStore.CreateReview", "reviewID", r.ReviewID, "subscriberID", r.SubscriberID)
	return r.ReviewID, nil
}

func (s *SQLiteStore) GetReview(id string) (*models.PendingReview, error) {
	r, err := scanReview(s.db.QueryRow(`SELECT `+reviewColumns+` FROM pending_reviews WHERE review_id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get review %s: %w", id, err)
	}
	return &r, nil
}

func (s *SQLiteStore) ListReviews(status models.ReviewStatus, limit int) ([]models.PendingReview, error) {
	query := `SELECT ` + reviewColumns + ` FROM pending_reviews`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, review_id DESC LIMIT ?`
	args = append(args, listLimit(limit))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return collectReviews(rows)
}

func (s *SQLiteStore) ResolveReview(id string, status models.ReviewStatus, finalResponse string, scheduleID *int64, reviewedAt time.Time) error {
	var sched interface{}
	if scheduleID != nil {
		sched = *scheduleID
	}
	res, err := s.db.Exec(
		`UPDATE pending_reviews SET status = ?, final_response = ?, schedule_id = ?, reviewed_at = ?
		 WHERE review_id = ? AND status = 'pending'`,
		status, nilIfEmpty(finalResponse), sched, reviewedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("resolve review %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve review %s rows affected: %w", id, err)
	}
	if n == 0 {
		if _, err := s.GetReview(id); err != nil {
			return err
		}
		return ErrConflict
	}
	slog.Debug("SQLiteStore.ResolveReview", "reviewID", id, "status", status)
	return nil
}
