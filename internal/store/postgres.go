// Package store provides storage backends for Shanbot.
//
// This file implements the PostgreSQL-backed store and its user and message tables.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/Shanbot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.New: creating Postgres store", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("PostgresStore.New: open failed", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore.New: ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore.New: failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore.New: migrations applied")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) UpsertUser(subscriberID, igUsername, lastMessage string, seenAt time.Time) error {
	seenAt = seenAt.UTC()
	_, err := s.db.Exec(
		`INSERT INTO users (subscriber_id, ig_username, first_seen, last_seen, last_message)
		 VALUES ($1, $2, $3, $3, $4)
		 ON CONFLICT (subscriber_id) DO UPDATE SET
		   ig_username  = COALESCE(EXCLUDED.ig_username, users.ig_username),
		   last_seen    = GREATEST(users.last_seen, EXCLUDED.last_seen),
		   last_message = EXCLUDED.last_message`,
		subscriberID, nilIfEmpty(igUsername), seenAt, lastMessage,
	)
	if err != nil {
		slog.Error("PostgresStore.UpsertUser failed", "error", err, "subscriberID", subscriberID)
		return fmt.Errorf("upsert user %s: %w", subscriberID, err)
	}
	slog.Debug("PostgresStore.UpsertUser succeeded", "subscriberID", subscriberID)
	return nil
}

func (s *PostgresStore) GetUser(subscriberID string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(
		`SELECT subscriber_id, ig_username, first_seen, last_seen, last_message FROM users WHERE subscriber_id = $1`,
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

func (s *PostgresStore) SaveMessage(m models.StoredMessage) (int64, error) {
	var id int64
	err := s.db.QueryRow(
		`INSERT INTO messages (subscriber_id, ig_username, type, text, timestamp) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		m.SubscriberID, nilIfEmpty(m.IGUsername), m.Type, m.Text, m.Timestamp.UTC(),
	).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore.SaveMessage failed", "error", err, "subscriberID", m.SubscriberID)
		return 0, fmt.Errorf("save message for %s: %w", m.SubscriberID, err)
	}
	slog.Debug("PostgresStore.SaveMessage succeeded", "id", id, "subscriberID", m.SubscriberID, "type", m.Type)
	return id, nil
}

func (s *PostgresStore) ListMessages(subscriberID string, limit int) ([]models.StoredMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, subscriber_id, ig_username, type, text, timestamp FROM messages
		 WHERE subscriber_id = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`,
		subscriberID, listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", subscriberID, err)
	}
	return collectMessages(rows)
}

// Close closes the Postgres connection pool.
func (s *PostgresStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("PostgresStore.Close failed", "error", err)
	}
	return err
}
