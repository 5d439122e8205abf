// Package ext defines the extension system for backlog.
// Extensions are notified of lifecycle events (record enqueued, completed,
// failed, etc.) and can react to them: metrics, tracking, crash reporting.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/backlog/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobEnqueued is called after a record is accepted.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins an attempt.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a record resolves Success.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when an attempt asked for a retry and the record
// was put back with a backoff gate.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextEligibleAt time.Time) error
}

// JobFailed is called once per record that resolves Failed, including
// expired records and cascade-failed dependents.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, cause error) error
}

// JobCanceled is called when a record resolves Canceled.
type JobCanceled interface {
	OnJobCanceled(ctx context.Context, j *job.Job) error
}

// JobFatal is the diagnostic channel: it receives the cause of every
// FatalFailure (including recovered panics) in addition to JobFailed.
type JobFatal interface {
	OnJobFatal(ctx context.Context, j *job.Job, cause error) error
}

// JobsRecovered is called after startup reload with the number of
// persisted records brought back into the ledger.
type JobsRecovered interface {
	OnJobsRecovered(ctx context.Context, count int) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
