package job

import (
	"time"

	"github.com/xraph/backlog/id"
)

// DefaultMaxAttempts is the attempt budget of a record that does not set one.
const DefaultMaxAttempts = 3

// Options configures per-record behavior such as queueing, retries and gates.
type Options struct {
	// Queue is the queue key. Records sharing a key run one at a time in
	// submission order. Empty means the record is queue-less.
	Queue string

	// Constraints names the constraints that must all be met before the
	// record is eligible.
	Constraints []string

	// MaxAttempts is the attempt budget. Unlimited disables the bound.
	MaxAttempts int

	// Lifespan is the maximum record age. Zero means immortal.
	Lifespan time.Duration

	// DependsOn lists parent records that must succeed first.
	DependsOn []id.JobID

	// Priority orders candidates from different queues. Higher runs first.
	Priority int

	// MemoryOnly records are never persisted.
	MemoryOnly bool

	// MaxConcurrentForQueue caps running records sharing Queue.
	MaxConcurrentForQueue int

	// MaxConcurrentForType caps running records sharing the type tag.
	// Zero means no cap.
	MaxConcurrentForType int

	// Delay postpones the first attempt.
	Delay time.Duration

	// Timeout bounds a single attempt. Zero means no bound.
	Timeout time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:           DefaultMaxAttempts,
		MaxConcurrentForQueue: 1,
	}
}

// Option is a functional option for configuring a submitted record.
type Option func(*Options)

// Apply returns DefaultOptions with opts applied in order.
func Apply(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithQueue sets the queue key.
func WithQueue(q string) Option {
	return func(o *Options) { o.Queue = q }
}

// WithConstraints adds required constraints.
func WithConstraints(names ...string) Option {
	return func(o *Options) { o.Constraints = append(o.Constraints, names...) }
}

// WithMaxAttempts sets the attempt budget. Pass Unlimited to retry until
// the lifespan runs out.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithLifespan sets the maximum age of the record.
func WithLifespan(d time.Duration) Option {
	return func(o *Options) { o.Lifespan = d }
}

// WithDependsOn adds parent records.
func WithDependsOn(parents ...id.JobID) Option {
	return func(o *Options) { o.DependsOn = append(o.DependsOn, parents...) }
}

// WithPriority sets the priority. Higher values are picked first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithMemoryOnly keeps the record out of the persistent store.
func WithMemoryOnly() Option {
	return func(o *Options) { o.MemoryOnly = true }
}

// WithMaxConcurrentForQueue sets how many records of the queue may run at once.
func WithMaxConcurrentForQueue(n int) Option {
	return func(o *Options) { o.MaxConcurrentForQueue = n }
}

// WithMaxConcurrentForType sets how many records of the type may run at once.
func WithMaxConcurrentForType(n int) Option {
	return func(o *Options) { o.MaxConcurrentForType = n }
}

// WithDelay postpones the first attempt by d.
func WithDelay(d time.Duration) Option {
	return func(o *Options) { o.Delay = d }
}

// WithTimeout sets the maximum duration of one attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}
