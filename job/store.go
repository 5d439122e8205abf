package job

import (
	"context"

	"github.com/xraph/backlog/id"
)

// Store defines the persistence contract for job records. Backends are a
// plain ledger keyed by record id; claim atomicity is provided by the
// ledger package above them, which holds the only writer.
type Store interface {
	// InsertJobs persists new records together with their dependency edges
	// (taken from DependsOn). The batch is atomic: either every record is
	// stored or none is.
	InsertJobs(ctx context.Context, jobs []*Job) error

	// UpdateJobs overwrites the mutable fields of existing records
	// (LastAttemptAt, NextEligibleAt, Attempt, Running).
	UpdateJobs(ctx context.Context, jobs []*Job) error

	// DeleteJobs removes records and every edge that mentions them.
	// Unknown ids are ignored.
	DeleteJobs(ctx context.Context, ids []id.JobID) error

	// LoadJobs returns every persisted record ordered by
	// (QueueKey, CreatedAt, Seq), with DependsOn populated.
	LoadJobs(ctx context.Context) ([]*Job, error)
}
