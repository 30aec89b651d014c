// Package store provides storage backends for Shanbot.
//
// This file implements the SQLite-backed store and its user and message tables.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/BTreeMap/Shanbot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
	// sqliteBusyTimeoutMS lets the webhook server and the dispatcher share one file.
	sqliteBusyTimeoutMS = 5000
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.New: creating SQLite store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	path := strings.TrimPrefix(strings.SplitN(dsn, "?", 2)[0], "file:")
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore.New: failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", withBusyTimeout(dsn))
	if err != nil {
		slog.Error("SQLiteStore.New: open failed", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore.New: ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore.New: failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore.New: migrations applied", "path", path)

	return &SQLiteStore{db: db}, nil
}

func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d", dsn, sep, sqliteBusyTimeoutMS)
}

func (s *SQLiteStore) UpsertUser(subscriberID, igUsername, lastMessage string, seenAt time.Time) error {
	seenAt = seenAt.UTC()
	_, err := s.db.Exec(
		`INSERT INTO users (subscriber_id, ig_username, first_seen, last_seen, last_message)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (subscriber_id) DO UPDATE SET
		   ig_username  = COALESCE(excluded.ig_username, users.ig_username),
		   last_seen    = MAX(users.last_seen, excluded.last_seen),
		   last_message = excluded.last_message`,
		subscriberID, nilIfEmpty(igUsername), seenAt, seenAt, lastMessage,
	)
	if err != nil {
		slog.Error("SQLiteStore.UpsertUser failed", "error", err, "subscriberID", subscriberID)
		return fmt.Errorf("upsert user %s: %w", subscriberID, err)
	}
	slog.Debug("SQLiteStore.UpsertUser succeeded", "subscriberID", subscriberID)
	return nil
}

func (s *SQLiteStore) GetUser(subscriberID string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(
		`SELECT subscriber_id, ig_username, first_seen, last_seen, last_message FROM users WHERE subscriber_id = ?`,
		subscriberID,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", subscriberID, err)
	}
	return u, nil
}

func (s *SQLiteStore) SaveMessage(m models.StoredMessage) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO messages (subscriber_id, ig_username, type, text, timestamp) VALUES (?, ?, ?, ?, ?)`,
		m.SubscriberID, nilIfEmpty(m.IGUsername), m.Type, m.Text, m.Timestamp.UTC(),
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveMessage failed", "error", err, "subscriberID", m.SubscriberID)
		return 0, fmt.Errorf("save message for %s: %w", m.SubscriberID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save message id: %w", err)
	}
	slog.Debug("SQLiteStore.SaveMessage succeeded", "id", id, "subscriberID", m.SubscriberID, "type", m.Type)
	return id, nil
}

func (s *SQLiteStore) ListMessages(subscriberID string, limit int) ([]models.StoredMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, subscriber_id, ig_username, type, text, timestamp FROM messages
		 WHERE subscriber_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		subscriberID, listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", subscriberID, err)
	}
	return collectMessages(rows)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("SQLiteStore.Close failed", "error", err)
	} else {
		slog.Debug("SQLiteStore.Close: connection closed")
	}
	return err
}
