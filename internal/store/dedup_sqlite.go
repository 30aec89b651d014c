package store

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// Compile-time checks that SQLiteStore implements the dedup repos.
var (
	_ DedupRepo         = (*SQLiteStore)(nil)
	_ DeliveryDedupRepo = (*SQLiteStore)(nil)
)

func (s *SQLiteStore) IsDuplicate(messageID string) (bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT message_id FROM inbound_dedup WHERE message_id = ?`, messageID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) RecordInbound(messageID, subscriberID string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO inbound_dedup (message_id, subscriber_id, received_at) VALUES (?, ?, ?)`,
		messageID, subscriberID, utcNow(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	if n == 0 {
		slog.Debug("SQLiteStore.RecordInbound: duplicate", "messageID", messageID, "subscriberID", subscriberID)
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`, utcNow(), messageID)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClaimDelivery(key string, scheduleID int64) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO delivery_dedup (dedupe_key, schedule_id, claimed_at) VALUES (?, ?, ?)`,
		key, scheduleID, utcNow(),
	)
	if err != nil {
		return false, fmt.Errorf("claim delivery %s failed: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim delivery rows affected check failed: %w", err)
	}
	return n > 0, nil
}
