package job

import (
	"slices"
	"time"

	"github.com/xraph/backlog/id"
)

// State represents the lifecycle state of a job record.
type State string

const (
	// StateQueued means the record is waiting for its gates to open.
	StateQueued State = "queued"
	// StateEligible means the record could be claimed on the next pass.
	StateEligible State = "eligible"
	// StateRunning means a worker has claimed the record.
	StateRunning State = "running"
	// StateRetryPending means the last attempt asked for a retry and the
	// backoff gate has not yet passed.
	StateRetryPending State = "retry_pending"
	// StateSucceeded means the body returned Success. Terminal.
	StateSucceeded State = "succeeded"
	// StateFailed means the record failed, expired, or a parent failed. Terminal.
	StateFailed State = "failed"
	// StateCanceled means the record was canceled. Terminal.
	StateCanceled State = "canceled"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCanceled
}

// Unlimited is the MaxAttempts value meaning "retry until lifespan expires".
const Unlimited = -1

// Job is the durable description of one unit of submitted work.
type Job struct {
	ID       id.JobID `json:"id"`
	TypeTag  string   `json:"type_tag"`
	QueueKey string   `json:"queue_key,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	Seq            int64     `json:"seq"`
	LastAttemptAt  time.Time `json:"last_attempt_at,omitempty"`
	NextEligibleAt time.Time `json:"next_eligible_at,omitempty"`

	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	Lifespan    time.Duration `json:"lifespan,omitempty"`
	Priority    int           `json:"priority"`
	Timeout     time.Duration `json:"timeout,omitempty"`

	MaxConcurrentForQueue int `json:"max_concurrent_for_queue"`
	MaxConcurrentForType  int `json:"max_concurrent_for_type,omitempty"`

	Running    bool `json:"running"`
	MemoryOnly bool `json:"memory_only,omitempty"`

	Constraints []string   `json:"constraints,omitempty"`
	DependsOn   []id.JobID `json:"depends_on,omitempty"`
	Payload     []byte     `json:"payload,omitempty"`
}

// New builds a record for the given type tag and encoded payload.
// CreatedAt is set to now; the ledger assigns Seq on enqueue.
func New(typeTag string, payload []byte, o Options) *Job {
	now := time.Now().UTC()
	j := &Job{
		ID:                    id.NewJobID(),
		TypeTag:               typeTag,
		QueueKey:              o.Queue,
		CreatedAt:             now,
		MaxAttempts:           o.MaxAttempts,
		Lifespan:              o.Lifespan,
		Priority:              o.Priority,
		Timeout:               o.Timeout,
		MaxConcurrentForQueue: o.MaxConcurrentForQueue,
		MaxConcurrentForType:  o.MaxConcurrentForType,
		MemoryOnly:            o.MemoryOnly,
		Constraints:           slices.Clone(o.Constraints),
		DependsOn:             slices.Clone(o.DependsOn),
		Payload:               payload,
	}
	if o.Delay > 0 {
		j.NextEligibleAt = now.Add(o.Delay)
	}
	if j.MaxConcurrentForQueue <= 0 {
		j.MaxConcurrentForQueue = 1
	}
	return j
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	c := *j
	c.Constraints = slices.Clone(j.Constraints)
	c.DependsOn = slices.Clone(j.DependsOn)
	c.Payload = slices.Clone(j.Payload)
	return &c
}

// ExpiresAt returns the instant the record's lifespan runs out, or the zero
// time for immortal records.
func (j *Job) ExpiresAt() time.Time {
	if j.Lifespan <= 0 {
		return time.Time{}
	}
	return j.CreatedAt.Add(j.Lifespan)
}

// Expired reports whether the record is older than its lifespan at now.
func (j *Job) Expired(now time.Time) bool {
	if j.Lifespan <= 0 {
		return false
	}
	return now.Sub(j.CreatedAt) > j.Lifespan
}

// AttemptsExhausted reports whether attempt has used up the retry budget.
func (j *Job) AttemptsExhausted(attempt int) bool {
	return j.MaxAttempts != Unlimited && attempt >= j.MaxAttempts
}

// Before reports whether j was submitted before o. Records are ordered by
// CreatedAt, then by the ledger sequence number.
func (j *Job) Before(o *Job) bool {
	if !j.CreatedAt.Equal(o.CreatedAt) {
		return j.CreatedAt.Before(o.CreatedAt)
	}
	return j.Seq < o.Seq
}

// State derives the record's state ignoring constraint and dependency
// gates, which only the ledger can evaluate.
func (j *Job) State(now time.Time) State {
	switch {
	case j.Running:
		return StateRunning
	case j.Attempt > 0 && now.Before(j.NextEligibleAt):
		return StateRetryPending
	default:
		return StateQueued
	}
}
