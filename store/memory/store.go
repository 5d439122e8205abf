// Package memory provides an in-memory job store. It survives a ledger
// reload within the same process, which makes it the store of choice for
// restart simulations in tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/store"
)

var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu   sync.RWMutex
	jobs map[id.JobID]*job.Job

	// failNext, when set, is returned by the next write.
	failNext error
}

// New returns a new empty Store.
func New() *Store {
	return &Store{jobs: make(map[id.JobID]*job.Job)}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate, Ping, Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store; its contents stay available to a
// subsequent reload.
func (m *Store) Close() error { return nil }

// FailNextWrite makes the next InsertJobs, UpdateJobs or DeleteJobs call
// return err without changing anything. Used to test rollback paths.
func (m *Store) FailNextWrite(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *Store) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// InsertJobs persists new records. The batch is all-or-nothing.
func (m *Store) InsertJobs(_ context.Context, jobs []*job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	for _, j := range jobs {
		if _, exists := m.jobs[j.ID]; exists {
			return fmt.Errorf("%w: %s", backlog.ErrJobAlreadyExists, j.ID)
		}
	}
	for _, j := range jobs {
		m.jobs[j.ID] = j.Clone()
	}
	return nil
}

// UpdateJobs overwrites the mutable fields of existing records.
func (m *Store) UpdateJobs(_ context.Context, jobs []*job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	for _, j := range jobs {
		if _, ok := m.jobs[j.ID]; !ok {
			return fmt.Errorf("%w: %s", backlog.ErrJobNotFound, j.ID)
		}
	}
	for _, j := range jobs {
		cur := m.jobs[j.ID]
		cur.LastAttemptAt = j.LastAttemptAt
		cur.NextEligibleAt = j.NextEligibleAt
		cur.Attempt = j.Attempt
		cur.Running = j.Running
	}
	return nil
}

// DeleteJobs removes records and every edge that mentions them.
func (m *Store) DeleteJobs(_ context.Context, ids []id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	gone := make(map[id.JobID]struct{}, len(ids))
	for _, jid := range ids {
		delete(m.jobs, jid)
		gone[jid] = struct{}{}
	}
	for _, j := range m.jobs {
		j.DependsOn = slices.DeleteFunc(j.DependsOn, func(p id.JobID) bool {
			_, removed := gone[p]
			return removed
		})
	}
	return nil
}

// LoadJobs returns every record ordered by (QueueKey, CreatedAt, Seq).
func (m *Store) LoadJobs(_ context.Context) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.Clone())
	}
	slices.SortFunc(out, store.Compare)
	return out, nil
}
