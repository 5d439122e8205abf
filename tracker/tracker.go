package tracker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/backlog/ext"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Tracker)(nil)
	_ ext.JobEnqueued  = (*Tracker)(nil)
	_ ext.JobStarted   = (*Tracker)(nil)
	_ ext.JobCompleted = (*Tracker)(nil)
	_ ext.JobRetrying  = (*Tracker)(nil)
	_ ext.JobFailed    = (*Tracker)(nil)
	_ ext.JobCanceled  = (*Tracker)(nil)
	_ ext.Shutdown     = (*Tracker)(nil)
)

// DefaultBufferSize is the default per-subscriber update buffer.
const DefaultBufferSize = 64

// Tracker fans lifecycle events out to subscribers. Register it as an
// extension on the engine and hand out subscribers with Watch.
type Tracker struct {
	logger     *slog.Logger
	bufferSize int
	now        func() time.Time

	mu     sync.Mutex
	nextID uint64
	byJob  map[id.JobID]map[uint64]*Subscriber
	all    map[uint64]*Subscriber

	published atomic.Int64
	dropped   atomic.Int64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithBufferSize sets the per-subscriber update buffer size.
func WithBufferSize(size int) Option {
	return func(t *Tracker) {
		if size > 0 {
			t.bufferSize = size
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a tracker.
func New(logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		logger:     logger,
		bufferSize: DefaultBufferSize,
		now:        time.Now,
		byJob:      make(map[id.JobID]map[uint64]*Subscriber),
		all:        make(map[uint64]*Subscriber),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements ext.Extension.
func (t *Tracker) Name() string { return "tracker" }

// Watch subscribes to the updates of one record. The channel closes after
// the record's terminal update.
func (t *Tracker) Watch(jobID id.JobID) *Subscriber {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	sub := &Subscriber{id: t.nextID, jobID: jobID, ch: make(chan Update, t.bufferSize)}
	subs, ok := t.byJob[jobID]
	if !ok {
		subs = make(map[uint64]*Subscriber)
		t.byJob[jobID] = subs
	}
	subs[sub.id] = sub
	sub.detach = func() { t.detach(jobID, sub.id) }
	return sub
}

// WatchAll subscribes to the updates of every record.
func (t *Tracker) WatchAll() *Subscriber {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	sub := &Subscriber{id: t.nextID, ch: make(chan Update, t.bufferSize)}
	t.all[sub.id] = sub
	sub.detach = func() {
		t.mu.Lock()
		delete(t.all, sub.id)
		t.mu.Unlock()
	}
	return sub
}

func (t *Tracker) detach(jobID id.JobID, subID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.byJob[jobID]
	delete(subs, subID)
	if len(subs) == 0 {
		delete(t.byJob, jobID)
	}
}

// Stats contains tracker counters.
type Stats struct {
	Watchers  int   `json:"watchers"`
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
}

// Stats returns tracker statistics.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	n := len(t.all)
	for _, subs := range t.byJob {
		n += len(subs)
	}
	t.mu.Unlock()
	return Stats{
		Watchers:  n,
		Published: t.published.Load(),
		Dropped:   t.dropped.Load(),
	}
}

// publish delivers u to its record's watchers and to every firehose.
// Record watchers are closed after a terminal update.
func (t *Tracker) publish(u Update) {
	u.Timestamp = t.now().UTC()

	t.mu.Lock()
	targets := make([]*Subscriber, 0, len(t.all)+len(t.byJob[u.JobID]))
	for _, s := range t.all {
		targets = append(targets, s)
	}
	jobSubs := t.byJob[u.JobID]
	for _, s := range jobSubs {
		targets = append(targets, s)
	}
	if u.Terminal() {
		delete(t.byJob, u.JobID)
	}
	t.mu.Unlock()

	for _, s := range targets {
		if s.send(u) {
			t.published.Add(1)
		} else {
			t.dropped.Add(1)
		}
	}
	if u.Terminal() {
		for _, s := range jobSubs {
			s.shut()
		}
	}
}

func updateFor(j *job.Job, state job.State) Update {
	return Update{
		JobID:    j.ID,
		TypeTag:  j.TypeTag,
		QueueKey: j.QueueKey,
		State:    state,
		Attempt:  j.Attempt,
	}
}

// OnJobEnqueued implements ext.JobEnqueued.
func (t *Tracker) OnJobEnqueued(_ context.Context, j *job.Job) error {
	u := updateFor(j, job.StateQueued)
	if j.NextEligibleAt.After(j.CreatedAt) {
		u.State = job.StateRetryPending
		u.NextEligibleAt = j.NextEligibleAt
	}
	t.publish(u)
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (t *Tracker) OnJobStarted(_ context.Context, j *job.Job) error {
	t.publish(updateFor(j, job.StateRunning))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (t *Tracker) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	u := updateFor(j, job.StateSucceeded)
	u.Elapsed = elapsed
	t.publish(u)
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (t *Tracker) OnJobRetrying(_ context.Context, j *job.Job, attempt int, nextEligibleAt time.Time) error {
	u := updateFor(j, job.StateRetryPending)
	u.Attempt = attempt
	u.NextEligibleAt = nextEligibleAt
	t.publish(u)
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (t *Tracker) OnJobFailed(_ context.Context, j *job.Job, cause error) error {
	u := updateFor(j, job.StateFailed)
	if cause != nil {
		u.Error = cause.Error()
	}
	t.publish(u)
	return nil
}

// OnJobCanceled implements ext.JobCanceled.
func (t *Tracker) OnJobCanceled(_ context.Context, j *job.Job) error {
	t.publish(updateFor(j, job.StateCanceled))
	return nil
}

// OnShutdown implements ext.Shutdown. Every subscriber is closed.
func (t *Tracker) OnShutdown(_ context.Context) error {
	t.mu.Lock()
	var subs []*Subscriber
	for _, s := range t.all {
		subs = append(subs, s)
	}
	for _, m := range t.byJob {
		for _, s := range m {
			subs = append(subs, s)
		}
	}
	t.all = make(map[uint64]*Subscriber)
	t.byJob = make(map[id.JobID]map[uint64]*Subscriber)
	t.mu.Unlock()

	for _, s := range subs {
		s.shut()
	}
	t.logger.Info("tracker shut down", slog.Int("watchers", len(subs)))
	return nil
}
