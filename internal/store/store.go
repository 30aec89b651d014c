// Package store provides the relational storage backends for Shanbot.
//
// SQLite is the default (a file inside the state directory); PostgreSQL is used when
// DATABASE_URL looks like a Postgres DSN. Both implement the same repo interfaces.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a record has already left the state an update requires.
	ErrConflict = errors.New("record is no longer in an updatable state")
)

// Opts holds configuration for the store backends.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or keyword DSNs and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") || strings.Contains(d, "user=") {
		return "postgres"
	}
	return "sqlite3"
}

// Store is everything the webhook, API and dispatcher need from persistence.
type Store interface {
	UserRepo
	MessageRepo
	ScheduledResponseRepo
	ReviewRepo
	DedupRepo
	DeliveryDedupRepo
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open picks the backend from the DSN and opens it.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN not set")
	}
	if DetectDSNType(dsn) == "postgres" {
		slog.Debug("store.Open: detected PostgreSQL DSN")
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	slog.Debug("store.Open: using SQLite", "path", dsn)
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}
