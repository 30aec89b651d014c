package store

import (
	"database/sql"
	"fmt"
)

// Compile-time checks that PostgresStore implements the dedup repos.
var (
	_ DedupRepo         = (*PostgresStore)(nil)
	_ DeliveryDedupRepo = (*PostgresStore)(nil)
)

func (s *PostgresStore) IsDuplicate(messageID string) (bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT message_id FROM inbound_dedup WHERE message_id = $1`, messageID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) RecordInbound(messageID, subscriberID string) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO inbound_dedup (message_id, subscriber_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`,
		messageID, subscriberID, utcNow(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(`UPDATE inbound_dedup SET processed_at = $1 WHERE message_id = $2`, utcNow(), messageID)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClaimDelivery(key string, scheduleID int64) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO delivery_dedup (dedupe_key, schedule_id, claimed_at) VALUES ($1, $2, $3) ON CONFLICT (dedupe_key) DO NOTHING`,
		key, scheduleID, utcNow(),
	)
	if err != nil {
		return false, fmt.Errorf("claim delivery %s failed: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim delivery rows affected check failed: %w", err)
	}
	return n > 0, nil
}
