// Package tracker streams per-record state transitions to watchers. It
// bridges the ext lifecycle hooks to in-process subscribers, so a UI can
// follow an upload or a send from enqueue to its terminal state.
package tracker

import (
	"time"

	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

// Update describes one state transition of a record.
type Update struct {
	JobID    id.JobID  `json:"job_id"`
	TypeTag  string    `json:"type"`
	QueueKey string    `json:"queue,omitempty"`
	State    job.State `json:"state"`

	// Attempt is the number of attempts counted so far.
	Attempt int `json:"attempt"`

	// NextEligibleAt is set for retry_pending updates.
	NextEligibleAt time.Time `json:"next_eligible_at,omitempty"`

	// Elapsed is set for succeeded updates.
	Elapsed time.Duration `json:"elapsed,omitempty"`

	// Error is the cause of a failed or canceled update.
	Error string `json:"error,omitempty"`

	Timestamp time.Time `json:"ts"`
}

// Terminal reports whether no further updates follow for the record.
func (u Update) Terminal() bool { return u.State.Terminal() }
