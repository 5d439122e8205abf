package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/job"
)

// Claim is the outcome of one eligibility pass.
type Claim struct {
	// Job is a copy of the claimed record, or nil when nothing was claimable.
	Job *job.Job

	// Expired lists records resolved Failed during the pass because their
	// lifespan ran out, followed by their cascaded dependents.
	Expired []Resolved

	// NextWake is the earliest instant a currently blocked record may
	// become claimable on its own (backoff gate, lifespan expiry, rate-limit
	// token). Zero means only an external event can unblock work.
	NextWake time.Time
}

// Claim runs one eligibility pass and, if a record is claimable, marks it
// running and returns it.
//
// The pass first resolves expired records, then takes the first
// non-running record of every queue (if the queue is under its cap) and
// every queue-less record as candidates, drops those whose backoff,
// dependency, constraint, type-cap or rate-limit gate is closed, and lets
// the fairness policy pick among the rest.
func (l *Ledger) Claim(ctx context.Context) (*Claim, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	res := &Claim{}
	res.Expired = l.expireLocked(ctx, now)

	var candidates []*entry
	for key, lane := range l.queues {
		for _, e := range lane {
			if e.job.Running {
				continue
			}
			ok, at := l.eligibleLocked(e, now)
			if ok && l.limits.QueueHasRoom(key, e.job.MaxConcurrentForQueue) {
				candidates = append(candidates, e)
			}
			res.NextWake = earliest(res.NextWake, at)
			break
		}
	}
	for _, e := range l.loose {
		if e.job.Running {
			continue
		}
		ok, at := l.eligibleLocked(e, now)
		if ok {
			candidates = append(candidates, e)
		}
		res.NextWake = earliest(res.NextWake, at)
	}

	admitted := candidates[:0]
	for _, e := range candidates {
		ok, at := l.limits.Admit(e.job, now)
		if ok {
			admitted = append(admitted, e)
			continue
		}
		res.NextWake = earliest(res.NextWake, at)
	}
	for _, e := range l.jobs {
		if !e.job.Running && e.job.Lifespan > 0 {
			res.NextWake = earliest(res.NextWake, e.job.ExpiresAt().Add(time.Millisecond))
		}
	}
	if len(admitted) == 0 {
		return res, nil
	}

	// Map iteration order is random; sort so policies see a stable order.
	slices.SortFunc(admitted, func(a, b *entry) int { return compare(a.job, b.job) })
	view := make([]*job.Job, len(admitted))
	for i, e := range admitted {
		view[i] = e.job
	}
	e := admitted[l.policy.Pick(view)]

	prevAttempt := e.job.LastAttemptAt
	e.job.Running = true
	e.job.LastAttemptAt = now.UTC().Truncate(time.Microsecond)
	if l.store != nil && !e.job.MemoryOnly {
		if err := l.store.UpdateJobs(ctx, []*job.Job{e.job.Clone()}); err != nil {
			e.job.Running = false
			e.job.LastAttemptAt = prevAttempt
			return res, fmt.Errorf("backlog/ledger: claim %s: %w", e.job.ID, err)
		}
	}
	l.limits.Acquire(e.job, now)
	l.policy.Served(e.job)

	res.Job = e.job.Clone()
	res.NextWake = time.Time{}
	return res, nil
}

// eligibleLocked evaluates the gates of a non-running record. When the
// backoff gate is the one closed, it also returns when it opens.
func (l *Ledger) eligibleLocked(e *entry, now time.Time) (bool, time.Time) {
	if now.Before(e.job.NextEligibleAt) {
		return false, e.job.NextEligibleAt
	}
	if e.canceled {
		return false, time.Time{}
	}
	if l.graph.Blocked(e.job.ID) {
		return false, time.Time{}
	}
	if ok, _ := l.constraints.AllMet(e.job.Constraints); !ok {
		return false, time.Time{}
	}
	return true, time.Time{}
}

// expireLocked resolves every non-running record past its lifespan.
func (l *Ledger) expireLocked(ctx context.Context, now time.Time) []Resolved {
	var expired []*entry
	for _, e := range l.jobs {
		if !e.job.Running && e.job.Expired(now) {
			expired = append(expired, e)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	slices.SortFunc(expired, func(a, b *entry) int { return compare(a.job, b.job) })

	var out []Resolved
	for _, e := range expired {
		if _, still := l.jobs[e.job.ID]; !still {
			continue
		}
		l.logger.Warn("job lifespan expired",
			slog.String("job_id", e.job.ID.String()),
			slog.String("type", e.job.TypeTag),
			slog.Duration("lifespan", e.job.Lifespan),
		)
		out = append(out, l.resolveLocked(e, job.StateFailed, backlog.ErrLifespanExpired)...)
	}
	if err := l.deleteLocked(ctx, out); err != nil {
		l.logger.Error("failed to delete expired jobs", slog.String("error", err.Error()))
	}
	return out
}

func earliest(cur, t time.Time) time.Time {
	if t.IsZero() {
		return cur
	}
	if cur.IsZero() || t.Before(cur) {
		return t
	}
	return cur
}
