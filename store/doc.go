// Package store defines the aggregate persistence interface.
//
// The persisted layout is a single ledger keyed by record id, sortable by
// (queue_key, created_at, seq) to rebuild dispatch order after a restart,
// plus the dependency edges between records. Only non-memory-only records
// ever reach a backend.
//
//	type Store interface {
//	    job.Store
//
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/memory: in-memory store for development and testing
//   - store/sqlite: embedded SQLite backend (modernc.org/sqlite, no cgo)
//   - store/postgres: PostgreSQL backend using pgx/v5
//   - store/redis: Redis backend using go-redis and msgpack
//
// Every backend runs the shared conformance suite in store/storetest.
//
// # Usage
//
//	s, err := sqlite.Open(ctx, "/var/lib/app/backlog.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	d, err := backlog.New(backlog.WithStore(s))
//
// # Migrations
//
// Call Migrate once at startup to create or update the schema:
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
