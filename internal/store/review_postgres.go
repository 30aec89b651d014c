package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/Shanbot/internal/models"
	"github.com/BTreeMap/Shanbot/internal/util"
)

// Compile-time check that PostgresStore implements ReviewRepo.
var _ ReviewRepo = (*PostgresStore)(nil)

func (s *PostgresStore) CreateReview(r models.PendingReview) (string, error) {
	if r.ReviewID == "" {
		r.ReviewID = util.GenerateReviewID()
	}
	_, err := s.db.Exec(
		`INSERT INTO pending_reviews (review_id, subscriber_id, ig_username, incoming_message_text,
		   incoming_message_timestamp, proposed_response, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)`,
		r.ReviewID, r.SubscriberID, nilIfEmpty(r.IGUsername), r.IncomingMessageText,
		r.IncomingMessageTimestamp.UTC(), r.ProposedResponse, utcNow(),
	)
	if err != nil {
		slog.Error("PostgresStore.CreateReview failed", "error", err, "subscriberID", r.SubscriberID)
		return "", fmt.Errorf("create review: %w", err)
	}
	return r.ReviewID, nil
}

func (s *PostgresStore) GetReview(id string) (*models.PendingReview, error) {
	r, err := scanReview(s.db.QueryRow(`SELECT `+reviewColumns+` FROM pending_reviews WHERE review_id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get review %s: %w", id, err)
	}
	return &r, nil
}

func (s *PostgresStore) ListReviews(status models.ReviewStatus, limit int) ([]models.PendingReview, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.Query(
			`SELECT `+reviewColumns+` FROM pending_reviews ORDER BY created_at DESC, review_id DESC LIMIT $1`,
			listLimit(limit),
		)
	} else {
		rows, err = s.db.Query(
			`SELECT `+reviewColumns+` FROM pending_reviews WHERE status = $1 ORDER BY created_at DESC, review_id DESC LIMIT $2`,
			status, listLimit(limit),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return collectReviews(rows)
}

func (s *PostgresStore) ResolveReview(id string, status models.ReviewStatus, finalResponse string, scheduleID *int64, reviewedAt time.Time) error {
	var sched interface{}
	if scheduleID != nil {
		sched = *scheduleID
	}
	res, err := s.db.Exec(
		`UPDATE pending_reviews SET status = $1, final_response = $2, schedule_id = $3, reviewed_at = $4
		 WHERE review_id = $5 AND status = 'pending'`,
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
	return nil
}
