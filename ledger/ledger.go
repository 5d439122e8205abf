// Package ledger is the single serialization point of the engine. It keeps
// every pending job record in memory, mirrors non-memory-only records to a
// job.Store backend, and hands out claims atomically.
//
// All claim and commit operations run under one mutex. The running-flag
// write of a claim is persisted before the mutex is released, so two
// workers can never hold the same record and a crash can never observe a
// claim that was not recorded.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/constraint"
	"github.com/xraph/backlog/dependency"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/queue"
	"github.com/xraph/backlog/scheduler"
	"github.com/xraph/backlog/store"
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(led *Ledger) { led.logger = l }
}

// WithPolicy sets the fairness policy. The default is scheduler.Priority.
func WithPolicy(p scheduler.Policy) Option {
	return func(led *Ledger) { led.policy = p }
}

// WithConstraints sets the constraint registry. Records requiring a
// constraint that is not registered are never eligible.
func WithConstraints(r *constraint.Registry) Option {
	return func(led *Ledger) { led.constraints = r }
}

// WithLimits sets the concurrency and rate-limit manager.
func WithLimits(m *queue.Manager) Option {
	return func(led *Ledger) { led.limits = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(led *Ledger) { led.now = now }
}

// Resolved describes a record that reached a terminal state.
type Resolved struct {
	Job   *job.Job
	State job.State
	Cause error
}

type entry struct {
	job      *job.Job
	canceled bool
	stop     context.CancelFunc
}

// Ledger holds the pending records.
type Ledger struct {
	store       job.Store
	constraints *constraint.Registry
	limits      *queue.Manager
	policy      scheduler.Policy
	logger      *slog.Logger
	now         func() time.Time

	mu     sync.Mutex
	jobs   map[id.JobID]*entry
	queues map[string][]*entry // per queue key, in submission order
	loose  map[id.JobID]*entry // queue-less records
	graph  *dependency.Graph
	seq    int64

	lmu       sync.Mutex
	listeners []func()
}

// New creates a ledger over store. A nil store keeps every record in
// memory only.
func New(store job.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		policy: scheduler.Priority{},
		logger: slog.Default(),
		now:    time.Now,
		jobs:   make(map[id.JobID]*entry),
		queues: make(map[string][]*entry),
		loose:  make(map[id.JobID]*entry),
		graph:  dependency.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.constraints == nil {
		l.constraints = constraint.NewRegistry()
	}
	if l.limits == nil {
		l.limits = queue.NewManager()
	}
	return l
}

// Constraints returns the constraint registry consulted on every pass.
func (l *Ledger) Constraints() *constraint.Registry { return l.constraints }

// Limits returns the concurrency manager.
func (l *Ledger) Limits() *queue.Manager { return l.limits }

// OnChange registers fn to be called after every mutation that may make a
// record claimable. fn must not block.
func (l *Ledger) OnChange(fn func()) {
	l.lmu.Lock()
	defer l.lmu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Ledger) notify() {
	l.lmu.Lock()
	listeners := slices.Clone(l.listeners)
	l.lmu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (l *Ledger) stamp() time.Time {
	return l.now().UTC().Truncate(time.Microsecond)
}

// Load merges the persisted records into the ledger. Records persisted as
// running belonged to a process that died mid-attempt: they are reset and
// become eligible immediately without counting the interrupted attempt.
// Dependency edges to parents that no longer exist are dropped.
func (l *Ledger) Load(ctx context.Context) (int, error) {
	if l.store == nil {
		return 0, nil
	}
	jobs, err := l.store.LoadJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("backlog/ledger: load: %w", err)
	}

	l.mu.Lock()
	var (
		added []*job.Job
		reset []*job.Job
	)
	for _, j := range jobs {
		if _, dup := l.jobs[j.ID]; dup {
			continue
		}
		if j.Running {
			j.Running = false
			reset = append(reset, j.Clone())
		}
		if j.MaxConcurrentForQueue <= 0 {
			j.MaxConcurrentForQueue = 1
		}
		added = append(added, j)
	}
	// Nothing becomes visible until the reset is persisted.
	if len(reset) > 0 {
		if err := l.store.UpdateJobs(ctx, reset); err != nil {
			l.mu.Unlock()
			return 0, fmt.Errorf("backlog/ledger: reset running: %w", err)
		}
		for _, j := range reset {
			l.logger.Info("recovered interrupted job",
				slog.String("job_id", j.ID.String()),
				slog.String("type", j.TypeTag),
				slog.Int("attempt", j.Attempt),
			)
		}
	}
	for _, j := range added {
		l.insertLocked(j)
		l.seq = max(l.seq, j.Seq)
	}
	for _, j := range added {
		parents := l.presentLocked(j.DependsOn, nil)
		j.DependsOn = parents
		l.graph.Add(j.ID, parents...)
	}
	l.mu.Unlock()

	l.notify()
	return len(added), nil
}

// Enqueue stamps and adds records. Non-memory-only records in the batch
// are persisted atomically together with their dependency edges before any
// of them becomes visible. Parents that are neither pending nor in the
// batch are treated as already succeeded.
//
// A persisted record may not depend on a memory-only one: the parent would
// vanish on restart and the child would run without it. Dependency cycles
// inside the batch are rejected too. Both fail with backlog.ErrInvalidInput.
func (l *Ledger) Enqueue(ctx context.Context, jobs ...*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	l.mu.Lock()
	batch := make(map[id.JobID]*job.Job, len(jobs))
	for _, j := range jobs {
		if j.ID.IsNil() {
			l.mu.Unlock()
			return fmt.Errorf("%w: nil job id", backlog.ErrInvalidInput)
		}
		if _, dup := l.jobs[j.ID]; dup {
			l.mu.Unlock()
			return fmt.Errorf("%w: %s", backlog.ErrJobAlreadyExists, j.ID)
		}
		if _, dup := batch[j.ID]; dup {
			l.mu.Unlock()
			return fmt.Errorf("%w: %s", backlog.ErrJobAlreadyExists, j.ID)
		}
		batch[j.ID] = j
	}
	if err := l.checkEdgesLocked(batch); err != nil {
		l.mu.Unlock()
		return err
	}

	now := l.stamp()
	seq := l.seq
	var persist []*job.Job
	for _, j := range jobs {
		if delay := j.NextEligibleAt.Sub(j.CreatedAt); !j.CreatedAt.IsZero() && !j.NextEligibleAt.IsZero() && delay > 0 {
			j.NextEligibleAt = now.Add(delay)
		}
		j.CreatedAt = now
		seq++
		j.Seq = seq
		j.Running = false
		if j.MaxConcurrentForQueue <= 0 {
			j.MaxConcurrentForQueue = 1
		}
		j.DependsOn = l.presentLocked(j.DependsOn, batch)
		if !j.MemoryOnly {
			persist = append(persist, j.Clone())
		}
	}

	if l.store != nil && len(persist) > 0 {
		if err := l.store.InsertJobs(ctx, persist); err != nil {
			l.mu.Unlock()
			return fmt.Errorf("backlog/ledger: insert: %w", err)
		}
	}

	l.seq = seq
	for _, j := range jobs {
		l.insertLocked(j.Clone())
	}
	for _, j := range jobs {
		l.graph.Add(j.ID, j.DependsOn...)
	}
	l.mu.Unlock()

	l.notify()
	return nil
}

// checkEdgesLocked validates the dependency edges of a batch before any of
// it is stamped.
func (l *Ledger) checkEdgesLocked(batch map[id.JobID]*job.Job) error {
	for _, j := range batch {
		if j.MemoryOnly {
			continue
		}
		for _, p := range j.DependsOn {
			parent := batch[p]
			if e, ok := l.jobs[p]; ok {
				parent = e.job
			}
			if parent != nil && parent.MemoryOnly {
				return fmt.Errorf("%w: persisted job %s depends on memory-only job %s",
					backlog.ErrInvalidInput, j.ID, p)
			}
		}
	}

	// Pending records cannot depend on the batch, so a cycle must lie
	// entirely inside it.
	const (
		visiting = 1
		done     = 2
	)
	mark := make(map[id.JobID]int, len(batch))
	var visit func(id.JobID) error
	visit = func(n id.JobID) error {
		switch mark[n] {
		case visiting:
			return fmt.Errorf("%w: dependency cycle through job %s", backlog.ErrInvalidInput, n)
		case done:
			return nil
		}
		mark[n] = visiting
		for _, p := range batch[n].DependsOn {
			if _, ok := batch[p]; !ok {
				continue
			}
			if err := visit(p); err != nil {
				return err
			}
		}
		mark[n] = done
		return nil
	}
	for n := range batch {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}

// presentLocked filters parents down to those still pending or in batch.
func (l *Ledger) presentLocked(parents []id.JobID, batch map[id.JobID]*job.Job) []id.JobID {
	var out []id.JobID
	for _, p := range parents {
		if _, ok := l.jobs[p]; ok {
			out = append(out, p)
			continue
		}
		if _, ok := batch[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (l *Ledger) insertLocked(j *job.Job) {
	e := &entry{job: j}
	l.jobs[j.ID] = e
	if j.QueueKey == "" {
		l.loose[j.ID] = e
		return
	}
	lane := l.queues[j.QueueKey]
	i := len(lane)
	for i > 0 && j.Before(lane[i-1].job) {
		i--
	}
	l.queues[j.QueueKey] = slices.Insert(lane, i, e)
}

func (l *Ledger) removeLocked(e *entry) {
	jid := e.job.ID
	delete(l.jobs, jid)
	l.graph.Remove(jid)
	if e.job.QueueKey == "" {
		delete(l.loose, jid)
		return
	}
	key := e.job.QueueKey
	lane := l.queues[key]
	if i := slices.Index(lane, e); i >= 0 {
		lane = slices.Delete(lane, i, i+1)
	}
	if len(lane) == 0 {
		delete(l.queues, key)
		if f, ok := l.policy.(interface{ Forget(string) }); ok {
			f.Forget(key)
		}
		return
	}
	l.queues[key] = lane
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Get returns a copy of the record and its current state.
func (l *Ledger) Get(jobID id.JobID) (*job.Job, job.State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.jobs[jobID]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", backlog.ErrJobNotFound, jobID)
	}
	return e.job.Clone(), l.stateLocked(e, l.now()), nil
}

func (l *Ledger) stateLocked(e *entry, now time.Time) job.State {
	st := e.job.State(now)
	if st != job.StateQueued {
		return st
	}
	if ok, _ := l.eligibleLocked(e, now); !ok {
		return job.StateQueued
	}
	if key := e.job.QueueKey; key != "" {
		for _, other := range l.queues[key] {
			if other.job.Running {
				continue
			}
			if other != e {
				return job.StateQueued
			}
			break
		}
	}
	return job.StateEligible
}

// IsCanceled reports whether cancellation was requested for a pending record.
func (l *Ledger) IsCanceled(jobID id.JobID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.jobs[jobID]
	return ok && e.canceled
}

// Snapshot returns copies of all pending records ordered by
// (QueueKey, CreatedAt, Seq).
func (l *Ledger) Snapshot() []*job.Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedLocked(func(*job.Job) bool { return true })
}

// Query returns the ids of pending records matching pred, in the order of
// Snapshot. pred sees a copy and runs under the ledger lock.
func (l *Ledger) Query(pred func(*job.Job) bool) []id.JobID {
	l.mu.Lock()
	defer l.mu.Unlock()
	matched := l.sortedLocked(pred)
	out := make([]id.JobID, len(matched))
	for i, j := range matched {
		out[i] = j.ID
	}
	return out
}

// FindByType returns copies of the pending records of typeTag.
func (l *Ledger) FindByType(typeTag string) []*job.Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedLocked(func(j *job.Job) bool { return j.TypeTag == typeTag })
}

func (l *Ledger) sortedLocked(pred func(*job.Job) bool) []*job.Job {
	out := make([]*job.Job, 0, len(l.jobs))
	for _, e := range l.jobs {
		c := e.job.Clone()
		if pred(c) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, compare)
	return out
}

func compare(a, b *job.Job) int { return store.Compare(a, b) }

// Stats summarizes the pending records.
type Stats struct {
	Total        int `json:"total"`
	Running      int `json:"running"`
	Eligible     int `json:"eligible"`
	Queued       int `json:"queued"`
	RetryPending int `json:"retry_pending"`
	MemoryOnly   int `json:"memory_only"`
	Queues       int `json:"queues"`
}

// Stats returns counts of pending records by state.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	s := Stats{Total: len(l.jobs), Queues: len(l.queues)}
	for _, e := range l.jobs {
		if e.job.MemoryOnly {
			s.MemoryOnly++
		}
		switch l.stateLocked(e, now) {
		case job.StateRunning:
			s.Running++
		case job.StateEligible:
			s.Eligible++
		case job.StateRetryPending:
			s.RetryPending++
		default:
			s.Queued++
		}
	}
	return s
}

// Len returns the number of pending records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs)
}
