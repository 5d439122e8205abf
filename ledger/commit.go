package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

// CommitSuccess removes a running record. Its children lose the edge and
// become claimable once their other gates open.
func (l *Ledger) CommitSuccess(ctx context.Context, jobID id.JobID) error {
	l.mu.Lock()
	e, err := l.runningLocked(jobID)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	l.limits.Release(e.job)
	l.removeLocked(e)
	err = l.deleteLocked(ctx, []Resolved{{Job: e.job, State: job.StateSucceeded}})
	l.mu.Unlock()

	l.notify()
	return err
}

// CommitRetry counts the attempt and puts a running record back, gated
// until nextEligibleAt.
func (l *Ledger) CommitRetry(ctx context.Context, jobID id.JobID, nextEligibleAt time.Time) error {
	l.mu.Lock()
	e, err := l.runningLocked(jobID)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	l.limits.Release(e.job)
	e.job.Running = false
	e.job.Attempt++
	e.job.NextEligibleAt = nextEligibleAt.UTC().Truncate(time.Microsecond)
	e.stop = nil
	if l.store != nil && !e.job.MemoryOnly {
		if perr := l.store.UpdateJobs(ctx, []*job.Job{e.job.Clone()}); perr != nil {
			err = fmt.Errorf("backlog/ledger: retry %s: %w", jobID, perr)
		}
	}
	l.mu.Unlock()

	l.notify()
	return err
}

// CommitFailure removes a record and every transitive dependent. The
// returned slice starts with the record itself (carrying cause) followed by
// each dependent exactly once, in breadth-first order.
func (l *Ledger) CommitFailure(ctx context.Context, jobID id.JobID, cause error) ([]Resolved, error) {
	return l.commitTerminal(ctx, jobID, job.StateFailed, cause)
}

// CommitCanceled removes a running record whose cancellation was observed.
// Its dependents are cascade-failed.
func (l *Ledger) CommitCanceled(ctx context.Context, jobID id.JobID) ([]Resolved, error) {
	return l.commitTerminal(ctx, jobID, job.StateCanceled, backlog.ErrCanceled)
}

func (l *Ledger) commitTerminal(ctx context.Context, jobID id.JobID, state job.State, cause error) ([]Resolved, error) {
	l.mu.Lock()
	e, ok := l.jobs[jobID]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", backlog.ErrJobNotFound, jobID)
	}
	out := l.resolveLocked(e, state, cause)
	err := l.deleteLocked(ctx, out)
	l.mu.Unlock()

	l.notify()
	return out, err
}

// Cancel requests cancellation of a pending record. A running record is
// flagged and its context canceled; the body observes it cooperatively and
// the runner commits the outcome. A record that is not running is removed
// at once as Canceled and its dependents are cascade-failed; those are
// returned.
func (l *Ledger) Cancel(ctx context.Context, jobID id.JobID) ([]Resolved, error) {
	l.mu.Lock()
	e, ok := l.jobs[jobID]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", backlog.ErrJobNotFound, jobID)
	}
	out, err := l.cancelLocked(ctx, []*entry{e})
	l.mu.Unlock()

	l.notify()
	return out, err
}

// CancelQueue cancels every pending record of queueKey.
func (l *Ledger) CancelQueue(ctx context.Context, queueKey string) ([]Resolved, error) {
	return l.cancelWhere(ctx, func(j *job.Job) bool { return j.QueueKey == queueKey })
}

// CancelType cancels every pending record of typeTag.
func (l *Ledger) CancelType(ctx context.Context, typeTag string) ([]Resolved, error) {
	return l.cancelWhere(ctx, func(j *job.Job) bool { return j.TypeTag == typeTag })
}

func (l *Ledger) cancelWhere(ctx context.Context, pred func(*job.Job) bool) ([]Resolved, error) {
	l.mu.Lock()
	var targets []*entry
	for _, j := range l.sortedLocked(pred) {
		targets = append(targets, l.jobs[j.ID])
	}
	out, err := l.cancelLocked(ctx, targets)
	l.mu.Unlock()

	l.notify()
	return out, err
}

func (l *Ledger) cancelLocked(ctx context.Context, targets []*entry) ([]Resolved, error) {
	var out []Resolved
	for _, e := range targets {
		if cur, still := l.jobs[e.job.ID]; !still || cur != e {
			continue
		}
		if e.job.Running {
			e.canceled = true
			if e.stop != nil {
				e.stop()
			}
			continue
		}
		out = append(out, l.resolveLocked(e, job.StateCanceled, backlog.ErrCanceled)...)
	}
	return out, l.deleteLocked(ctx, out)
}

// Track associates the cancel function of a running record's context so
// that Cancel can interrupt it. If cancellation was already requested,
// stop is called immediately.
func (l *Ledger) Track(jobID id.JobID, stop context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.jobs[jobID]
	if !ok || !e.job.Running {
		return
	}
	e.stop = stop
	if e.canceled {
		stop()
	}
}

func (l *Ledger) runningLocked(jobID id.JobID) (*entry, error) {
	e, ok := l.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backlog.ErrJobNotFound, jobID)
	}
	if !e.job.Running {
		return nil, fmt.Errorf("%w: %s", backlog.ErrNotRunning, jobID)
	}
	return e, nil
}

// resolveLocked removes root with the given terminal state and
// cascade-fails its transitive dependents. Each record appears in the
// result exactly once.
func (l *Ledger) resolveLocked(root *entry, state job.State, cause error) []Resolved {
	descendants := l.graph.Descendants(root.job.ID)
	if root.job.Running {
		l.limits.Release(root.job)
	}
	l.removeLocked(root)
	out := []Resolved{{Job: root.job.Clone(), State: state, Cause: cause}}

	parentCause := fmt.Errorf("%w: %s", backlog.ErrParentFailed, root.job.ID)
	for _, did := range descendants {
		d, ok := l.jobs[did]
		if !ok {
			continue
		}
		if d.job.Running {
			// Only reachable for records whose edge was added after they
			// started; let the runner resolve them.
			d.canceled = true
			if d.stop != nil {
				d.stop()
			}
			continue
		}
		l.removeLocked(d)
		out = append(out, Resolved{Job: d.job.Clone(), State: job.StateFailed, Cause: parentCause})
	}
	return out
}

func (l *Ledger) deleteLocked(ctx context.Context, resolved []Resolved) error {
	if l.store == nil {
		return nil
	}
	var ids []id.JobID
	for _, r := range resolved {
		if !r.Job.MemoryOnly {
			ids = append(ids, r.Job.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if err := l.store.DeleteJobs(ctx, ids); err != nil {
		return fmt.Errorf("backlog/ledger: delete %d jobs: %w", len(ids), err)
	}
	return nil
}
