package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BTreeMap/Shanbot/internal/models"
)

// DefaultListLimit caps list queries when the caller passes a non-positive limit.
const DefaultListLimit = 100

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

const scheduledColumns = `schedule_id, user_ig_username, user_subscriber_id, response_text, incoming_message_text,
	incoming_message_timestamp, calculated_delay_minutes, scheduled_send_time, status, sent_at, last_error,
	created_at, updated_at`

func scanScheduledResponse(row rowScanner) (models.ScheduledResponse, error) {
	var r models.ScheduledResponse
	var igUsername, incomingText, lastError sql.NullString
	var sentAt sql.NullTime
	err := row.Scan(
		&r.ScheduleID, &igUsername, &r.UserSubscriberID, &r.ResponseText, &incomingText,
		&r.IncomingMessageTimestamp, &r.CalculatedDelayMinutes, &r.ScheduledSendTime, &r.Status, &sentAt, &lastError,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return r, err
	}
	r.UserIGUsername = igUsername.String
	r.IncomingMessageText = incomingText.String
	r.LastError = lastError.String
	r.IncomingMessageTimestamp = r.IncomingMessageTimestamp.UTC()
	r.ScheduledSendTime = r.ScheduledSendTime.UTC()
	if sentAt.Valid {
		t := sentAt.Time.UTC()
		r.SentAt = &t
	}
	return r, nil
}

func collectScheduledResponses(rows *sql.Rows) ([]models.ScheduledResponse, error) {
	defer rows.Close()
	var out []models.ScheduledResponse
	for rows.Next() {
		r, err := scanScheduledResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled response failed: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduled response iteration failed: %w", err)
	}
	return out, nil
}

const reviewColumns = `review_id, subscriber_id, ig_username, incoming_message_text, incoming_message_timestamp,
	proposed_response, final_response, status, schedule_id, created_at, reviewed_at`

func scanReview(row rowScanner) (models.PendingReview, error) {
	var r models.PendingReview
	var igUsername, finalResponse sql.NullString
	var scheduleID sql.NullInt64
	var reviewedAt sql.NullTime
	err := row.Scan(
		&r.ReviewID, &r.SubscriberID, &igUsername, &r.IncomingMessageText, &r.IncomingMessageTimestamp,
		&r.ProposedResponse, &finalResponse, &r.Status, &scheduleID, &r.CreatedAt, &reviewedAt,
	)
	if err != nil {
		return r, err
	}
	r.IGUsername = igUsername.String
	r.FinalResponse = finalResponse.String
	r.IncomingMessageTimestamp = r.IncomingMessageTimestamp.UTC()
	if scheduleID.Valid {
		id := scheduleID.Int64
		r.ScheduleID = &id
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		r.ReviewedAt = &t
	}
	return r, nil
}

func collectReviews(rows *sql.Rows) ([]models.PendingReview, error) {
	defer rows.Close()
	var out []models.PendingReview
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review failed: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("review iteration failed: %w", err)
	}
	return out, nil
}

func collectMessages(rows *sql.Rows) ([]models.StoredMessage, error) {
	defer rows.Close()
	var out []models.StoredMessage
	for rows.Next() {
		var m models.StoredMessage
		var igUsername sql.NullString
		if err := rows.Scan(&m.ID, &m.SubscriberID, &igUsername, &m.Type, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message failed: %w", err)
		}
		m.IGUsername = igUsername.String
		m.Timestamp = m.Timestamp.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message iteration failed: %w", err)
	}
	// Queried newest first so LIMIT keeps the tail; hand back chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var igUsername, lastMessage sql.NullString
	if err := row.Scan(&u.SubscriberID, &igUsername, &u.FirstSeen, &u.LastSeen, &lastMessage); err != nil {
		return nil, err
	}
	u.IGUsername = igUsername.String
	u.LastMessage = lastMessage.String
	u.FirstSeen = u.FirstSeen.UTC()
	u.LastSeen = u.LastSeen.UTC()
	return &u, nil
}

func utcNow() time.Time { return time.Now().UTC() }
