package backlog

import "time"

// Fairness names the policy used to choose among claimable jobs from
// different queues when the worker pool is saturated.
type Fairness string

const (
	// FairnessPriority picks the highest priority job, then the oldest.
	FairnessPriority Fairness = "priority"
	// FairnessRoundRobin rotates across queue keys, then applies priority.
	FairnessRoundRobin Fairness = "round_robin"
)

// Config holds configuration for the Dispatcher.
type Config struct {
	// Concurrency is the maximum number of job bodies executing at once.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Fairness selects the cross-queue scheduling policy.
	Fairness Fairness `json:"fairness" yaml:"fairness"`

	// BackoffInitial is the first retry delay of the default strategy.
	BackoffInitial time.Duration `json:"backoff_initial" yaml:"backoff_initial"`

	// BackoffMax caps the retry delay of the default strategy.
	BackoffMax time.Duration `json:"backoff_max" yaml:"backoff_max"`

	// BackoffJitter is the fraction (0..1) of each delay that is randomized.
	BackoffJitter float64 `json:"backoff_jitter" yaml:"backoff_jitter"`

	// IdleInterval is the longest a parked worker sleeps without a wake
	// signal before re-running the eligibility pass.
	IdleInterval time.Duration `json:"idle_interval" yaml:"idle_interval"`

	// ShutdownTimeout is the maximum time to wait for running bodies on
	// graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     4,
		Fairness:        FairnessPriority,
		BackoffInitial:  time.Second,
		BackoffMax:      time.Hour,
		BackoffJitter:   0.2,
		IdleInterval:    time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}
