package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/backlog/ext"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/ledger"
)

// Pool manages a set of worker goroutines that claim records from the
// ledger and run them through the Executor. Idle workers park until the
// ledger or a constraint changes, the earliest gate opens, or the idle
// interval elapses.
type Pool struct {
	ledger       *ledger.Ledger
	executor     *Executor
	extensions   *ext.Registry
	concurrency  int
	idleInterval time.Duration
	workerID     id.WorkerID
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	wakeMu sync.Mutex
	wake   chan struct{}

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[id.JobID]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithIdleInterval sets the longest a parked worker sleeps before
// re-running an eligibility pass on its own.
func WithIdleInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.idleInterval = d
		}
	}
}

// NewPool creates a worker pool and subscribes it to ledger and
// constraint changes.
func NewPool(
	l *ledger.Ledger,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		ledger:       l,
		executor:     executor,
		extensions:   extensions,
		concurrency:  4,
		idleInterval: time.Minute,
		workerID:     id.NewWorkerID(),
		logger:       logger,
		wake:         make(chan struct{}),
		stopCh:       make(chan struct{}),
		activeJobs:   make(map[id.JobID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	l.OnChange(p.Notify)
	l.Constraints().OnChange(p.Notify)
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Notify wakes every parked worker for a new eligibility pass.
func (p *Pool) Notify() {
	p.wakeMu.Lock()
	close(p.wake)
	p.wake = make(chan struct{})
	p.wakeMu.Unlock()
}

func (p *Pool) wakeChan() <-chan struct{} {
	p.wakeMu.Lock()
	defer p.wakeMu.Unlock()
	return p.wake
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.claimLoop()
	}
	return nil
}

// Stop signals all workers to stop and waits for running attempts to
// finish. If ctx is done first, active attempts are canceled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}
	p.cancel()
	return nil
}

// Active returns the number of attempts currently executing.
func (p *Pool) Active() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return len(p.activeJobs)
}

// claimLoop is run by each worker goroutine.
func (p *Pool) claimLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		// Taken before the pass so a change during it is not missed.
		wake := p.wakeChan()

		claim, err := p.ledger.Claim(p.ctx)
		if claim != nil && len(claim.Expired) > 0 {
			p.executor.Resolve(p.ctx, claim.Expired)
		}
		if err != nil {
			p.logger.Error("claim error", slog.String("error", err.Error()))
			p.park(wake, time.Time{})
			continue
		}
		if claim.Job == nil {
			p.park(wake, claim.NextWake)
			continue
		}

		p.run(claim.Job)
	}
}

func (p *Pool) run(j *job.Job) {
	ctx, cancel := context.WithCancel(p.ctx)
	p.trackJob(j.ID, cancel)

	if err := p.executor.Execute(ctx, j); err != nil {
		p.logger.Debug("job execution failed",
			slog.String("job_id", j.ID.String()),
			slog.String("type", j.TypeTag),
			slog.String("error", err.Error()),
		)
	}

	p.untrackJob(j.ID)
	cancel()
}

// park blocks until woken, until next (if set) or the idle interval
// passes, or until the pool stops.
func (p *Pool) park(wake <-chan struct{}, next time.Time) {
	d := p.idleInterval
	if !next.IsZero() {
		d = min(max(time.Until(next), 0), d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-wake:
	case <-timer.C:
	case <-p.stopCh:
	}
}

func (p *Pool) trackJob(jobID id.JobID, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID id.JobID) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID.String()))
		cancel()
	}
}
