package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/Shanbot/internal/models"
)

// Compile-time check that SQLiteStore implements ScheduledResponseRepo.
var _ ScheduledResponseRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) CreateScheduledResponse(rec models.ScheduledResponse) (int64, error) {
	now := utcNow()
	res, err := s.db.Exec(
		`INSERT INTO scheduled_responses (user_ig_username, user_subscriber_id, response_text, incoming_message_text,
		   incoming_message_timestamp, calculated_delay_minutes, scheduled_send_time, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 'scheduled', ?, ?)`,
		nilIfEmpty(rec.UserIGUsername), rec.UserSubscriberID, rec.ResponseText, nilIfEmpty(rec.IncomingMessageText),
		rec.IncomingMessageTimestamp.UTC(), rec.CalculatedDelayMinutes, rec.ScheduledSendTime.UTC(), now, now,
	)
	if err != nil {
		slog.Error("SQLiteStore.CreateScheduledResponse failed", "error", err, "subscriberID", rec.UserSubscriberID)
		return 0, fmt.Errorf("create scheduled response: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create scheduled response id: %w", err)
	}
	slog.Debug("SQLiteStore.CreateScheduledResponse", "scheduleID", id, "subscriberID", rec.UserSubscriberID,
		"sendAt", rec.ScheduledSendTime)
	return id, nil
}

func (s *SQLiteStore) GetScheduledResponse(id int64) (*models.ScheduledResponse, error) {
	r, err := scanScheduledResponse(s.db.QueryRow(
		`SELECT `+scheduledColumns+` FROM scheduled_responses WHERE schedule_id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scheduled response %d: %w", id, err)
	}
	return &r, nil
}

func (s *SQLiteStore) ListDueScheduledResponses(now time.Time, limit int) ([]models.ScheduledResponse, error) {
	rows, err := s.db.Query(
		`SELECT `+scheduledColumns+` FROM scheduled_responses
		 WHERE status = 'scheduled' AND scheduled_send_time <= ?
		 ORDER BY scheduled_send_time ASC, schedule_id ASC LIMIT ?`,
		now.UTC(), listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list due scheduled responses: %w", err)
	}
	return collectScheduledResponses(rows)
}

func (s *SQLiteStore) ListScheduledResponses(status models.ScheduleStatus, limit int) ([]models.ScheduledResponse, error) {
	query := `SELECT ` + scheduledColumns + ` FROM scheduled_responses`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY schedule_id DESC LIMIT ?`
	args = append(args, listLimit(limit))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scheduled responses: %w", err)
	}
	return collectScheduledResponses(rows)
}

func (s *SQLiteStore) MarkScheduledResponseSent(id int64, sentAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE scheduled_responses SET status = 'sent', sent_at = ?, updated_at = ?
		 WHERE schedule_id = ? AND status = 'scheduled'`,
		sentAt.UTC(), utcNow(), id,
	)
	if err != nil {
		return fmt.Errorf("mark scheduled response %d sent: %w", id, err)
	}
	return s.requireTransition(res, id)
}

func (s *SQLiteStore) MarkScheduledResponseFailed(id int64, errMsg string) error {
	res, err := s.db.Exec(
		`UPDATE scheduled_responses SET status = 'failed', last_error = ?, updated_at = ?
		 WHERE schedule_id = ? AND status = 'scheduled'`,
		errMsg, utcNow(), id,
	)
	if err != nil {
		return fmt.Errorf("mark scheduled response %d failed: %w", id, err)
	}
	return s.requireTransition(res, id)
}

// requireTransition distinguishes a missing record from one that already left scheduled.
func (s *SQLiteStore) requireTransition(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("scheduled response %d rows affected: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetScheduledResponse(id); err != nil {
		return err
	}
	return ErrConflict
}
