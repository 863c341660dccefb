// Package store provides storage backends for LoopPipe.
//
// Three backends implement the same repositories: an in-memory store for tests and
// single-process runs, SQLite for a local state directory and PostgreSQL for shared
// deployments. Each backend persists smart links, the event log, the delivery outbox and
// trigger idempotency keys.
package store

import (
	"fmt"
	"log/slog"
	"strings"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// Store is the union of every repository a backend provides.
type Store interface {
	LinkRepo
	EventRepo
	OutboxRepo
	DedupRepo
	Close() error
}

// Kind names a backend.
type Kind string

const (
	KindMemory   Kind = "memory"
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
)

// DetectKind picks the backend for dsn: empty selects memory, postgres URLs or key/value
// connection strings select PostgreSQL, anything else is treated as an SQLite file path.
func DetectKind(dsn string) Kind {
	d := strings.TrimSpace(dsn)
	switch {
	case d == "":
		return KindMemory
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"),
		strings.Contains(d, "host=") || strings.Contains(d, "dbname="):
		return KindPostgres
	default:
		return KindSQLite
	}
}

// Open returns the backend selected by DetectKind.
func Open(dsn string) (Store, Kind, error) {
	kind := DetectKind(dsn)
	slog.Debug("store.Open: selecting backend", "kind", kind)
	switch kind {
	case KindMemory:
		return NewInMemoryStore(), kind, nil
	case KindPostgres:
		s, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			return nil, kind, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, kind, nil
	default:
		s, err := NewSQLiteStore(WithSQLiteDSN(dsn))
		if err != nil {
			return nil, kind, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, kind, nil
	}
}
