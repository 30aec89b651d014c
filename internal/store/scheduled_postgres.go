package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/Shanbot/internal/models"
)

// Compile-time check that PostgresStore implements ScheduledResponseRepo.
var _ ScheduledResponseRepo = (*PostgresStore)(nil)

func (s *PostgresStore) CreateScheduledResponse(rec models.ScheduledResponse) (int64, error) {
	now := utcNow()
	var id int64
	err := s.db.QueryRow(
		`INSERT INTO scheduled_responses (user_ig_username, user_subscriber_id, response_text, incoming_message_text,
		   incoming_message_timestamp, calculated_delay_minutes, scheduled_send_time, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'scheduled', $8, $8) RETURNING schedule_id`,
		nilIfEmpty(rec.UserIGUsername), rec.UserSubscriberID, rec.ResponseText, nilIfEmpty(rec.IncomingMessageText),
		rec.IncomingMessageTimestamp.UTC(), rec.CalculatedDelayMinutes, rec.ScheduledSendTime.UTC(), now,
	).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore.CreateScheduledResponse failed", "error", err, "subscriberID", rec.UserSubscriberID)
		return 0, fmt.Errorf("create scheduled response: %w", err)
	}
	slog.Debug("PostgresStore.CreateScheduledResponse", "scheduleID", id, "subscriberID", rec.UserSubscriberID)
	return id, nil
}

func (s *PostgresStore) GetScheduledResponse(id int64) (*models.ScheduledResponse, error) {
	r, err := scanScheduledResponse(s.db.QueryRow(
		`SELECT `+scheduledColumns+` FROM scheduled_responses WHERE schedule_id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scheduled response %d: %w", id, err)
	}
	return &r, nil
}

func (s *PostgresStore) ListDueScheduledResponses(now time.Time, limit int) ([]models.ScheduledResponse, error) {
	rows, err := s.db.Query(
		`SELECT `+scheduledColumns+` FROM scheduled_responses
		 WHERE status = 'scheduled' AND scheduled_send_time <= $1
		 ORDER BY scheduled_send_time ASC, schedule_id ASC LIMIT $2`,
		now.UTC(), listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list due scheduled responses: %w", err)
	}
	return collectScheduledResponses(rows)
}

func (s *PostgresStore) ListScheduledResponses(status models.ScheduleStatus, limit int) ([]models.ScheduledResponse, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.Query(
			`SELECT `+scheduledColumns+` FROM scheduled_responses ORDER BY schedule_id DESC LIMIT $1`,
			listLimit(limit),
		)
	} else {
		rows, err = s.db.Query(
			`SELECT `+scheduledColumns+` FROM scheduled_responses WHERE status = $1 ORDER BY schedule_id DESC LIMIT $2`,
			status, listLimit(limit),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list scheduled responses: %w", err)
	}
	return collectScheduledResponses(rows)
}

func (s *PostgresStore) MarkScheduledResponseSent(id int64, sentAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE scheduled_responses SET status = 'sent', sent_at = $1, updated_at = $2
		 WHERE schedule_id = $3 AND status = 'scheduled'`,
		sentAt.UTC(), utcNow(), id,
	)
	if err != nil {
		return fmt.Errorf("mark scheduled response %d sent: %w", id, err)
	}
	return s.requireTransition(res, id)
}

func (s *PostgresStore) MarkScheduledResponseFailed(id int64, errMsg string) error {
	res, err := s.db.Exec(
		`UPDATE scheduled_responses SET status = 'failed', last_error = $1, updated_at = $2
		 WHERE schedule_id = $3 AND status = 'scheduled'`,
		errMsg, utcNow(), id,
	)
	if err != nil {
		return fmt.Errorf("mark scheduled response %d failed: %w", id, err)
	}
	return s.requireTransition(res, id)
}

func (s *PostgresStore) requireTransition(res sql.Result, id int64) error {
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
