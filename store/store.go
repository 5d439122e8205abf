// Package store defines the aggregate persistence interface. The engine
// needs only the job ledger contract (job.Store) plus lifecycle methods.
// Backends: Postgres, SQLite, Redis, and Memory.
package store

import (
	"context"

	"github.com/xraph/backlog/job"
)

// Store is the aggregate persistence interface.
// A single backend (postgres, sqlite, redis, memory) implements all of it.
type Store interface {
	job.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
