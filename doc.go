// Package backlog provides a durable background-work engine for Go. It
// accepts deferred units of work (jobs), persists them, and guarantees each
// eventually runs in the right order relative to related work, surviving
// process restarts, lost connectivity and partial failure.
//
// Backlog is designed as a library, not a service. Import it, configure a
// store, register job factories, and enqueue bodies.
//
// # Quick Start
//
//	d, err := backlog.New(
//	    backlog.WithStore(sqliteStore),
//	    backlog.WithConcurrency(4),
//	)
//	eng, err := engine.Build(d)
//	engine.RegisterDefinition(eng, SendMessage)
//	_ = eng.Start(ctx)
//	jobID, err := eng.Enqueue(ctx, SendMessage.New(msg),
//	    job.WithQueue("conversation:42"),
//	    job.WithConstraints("network"),
//	)
//
// # Architecture
//
// Jobs sharing a queue key run one at a time in creation order. A job may
// depend on other jobs; it runs only after all of its parents succeeded and
// fails (without running) as soon as one of them fails. Named constraints
// gate eligibility without failing the job, and a lifespan bounds how long a
// job may wait.
//
// The ledger package is the single serialization point: it keeps every
// pending record in memory, persists through a job.Store backend, and hands
// out claims atomically to the worker pool.
//
// All entity IDs are type-prefixed, K-sortable, UUIDv7-based identifiers.
package backlog
