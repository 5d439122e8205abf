// Package scheduler holds the fairness policies that choose one record
// among the claimable candidates of an eligibility pass.
//
// Candidate selection (FIFO heads per queue, constraint, backoff and cap
// gates) happens in the ledger; a Policy only orders what survived.
package scheduler

import (
	"fmt"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/job"
)

// Policy picks the next record to claim. Implementations may keep state and
// are always called under the ledger's claim lock.
type Policy interface {
	// Pick returns the index in candidates of the record to claim.
	// candidates is never empty.
	Pick(candidates []*job.Job) int

	// Served is told which record was claimed.
	Served(j *job.Job)
}

// New returns the policy for f.
func New(f backlog.Fairness) (Policy, error) {
	switch f {
	case "", backlog.FairnessPriority:
		return Priority{}, nil
	case backlog.FairnessRoundRobin:
		return NewRoundRobin(), nil
	default:
		return nil, fmt.Errorf("%w: unknown fairness policy %q", backlog.ErrInvalidInput, f)
	}
}

// Priority picks the highest priority record, tie-broken by submission order.
type Priority struct{}

// Pick implements Policy.
func (Priority) Pick(candidates []*job.Job) int {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if higher(candidates[i], candidates[best]) {
			best = i
		}
	}
	return best
}

// Served implements Policy.
func (Priority) Served(*job.Job) {}

func higher(a, b *job.Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Before(b)
}

// RoundRobin rotates across queue keys: the lane served least recently
// goes first, and Priority breaks ties within a rotation step. Queue-less
// records share one lane.
type RoundRobin struct {
	tick   uint64
	served map[string]uint64
}

// NewRoundRobin creates a round-robin policy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{served: make(map[string]uint64)}
}

// Pick implements Policy.
func (r *RoundRobin) Pick(candidates []*job.Job) int {
	best := 0
	for i := 1; i < len(candidates); i++ {
		a, b := candidates[i], candidates[best]
		la, lb := r.served[a.QueueKey], r.served[b.QueueKey]
		if la != lb {
			if la < lb {
				best = i
			}
			continue
		}
		if higher(a, b) {
			best = i
		}
	}
	return best
}

// Served implements Policy.
func (r *RoundRobin) Served(j *job.Job) {
	r.tick++
	r.served[j.QueueKey] = r.tick
}

// Forget drops lane state for a queue key that has drained.
func (r *RoundRobin) Forget(queueKey string) {
	delete(r.served, queueKey)
}
