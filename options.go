package backlog

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// Storer is the minimal store interface held by the Dispatcher.
// It covers lifecycle operations only. The job persistence contract
// (job.Store) is asserted in the engine package, which sits above the
// subsystem packages and so does not create import cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Dispatcher holds configuration, logging and the persistence backend.
//
// Create one with New() and functional options, then hand it to
// engine.Build, which wires the ledger, worker pool and extensions back
// into it.
type Dispatcher struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	pool       poolRunner

	started bool
}

// New creates a new Dispatcher with the given options.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Logger returns the dispatcher's logger.
func (d *Dispatcher) Logger() *slog.Logger { return d.logger }

// Store returns the dispatcher's store.
func (d *Dispatcher) Store() Storer { return d.store }

// Config returns a copy of the dispatcher's configuration.
func (d *Dispatcher) Config() Config { return d.config }

// SetPool sets the worker pool (called by the engine package).
func (d *Dispatcher) SetPool(p poolRunner) { d.pool = p }

// SetExtensions sets the extension emitter (called by the engine package).
func (d *Dispatcher) SetExtensions(e extensionEmitter) { d.extensions = e }

// Start begins job processing.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.pool == nil {
		return ErrNoStore
	}
	if err := d.pool.Start(ctx); err != nil {
		return err
	}
	d.started = true
	return nil
}

// Stop gracefully shuts down the worker pool and emits the shutdown hook.
// The store is closed last.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.pool != nil && d.started {
		if err := d.pool.Stop(ctx); err != nil {
			d.logger.Error("pool stop error", slog.String("error", err.Error()))
		}
		d.started = false
	}
	if d.extensions != nil {
		d.extensions.EmitShutdown(ctx)
	}
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// WithConfig replaces the whole configuration. Zero fields fall back to
// DefaultConfig values.
func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) error {
		def := DefaultConfig()
		if cfg.Concurrency <= 0 {
			cfg.Concurrency = def.Concurrency
		}
		if cfg.Fairness == "" {
			cfg.Fairness = def.Fairness
		}
		if cfg.BackoffInitial <= 0 {
			cfg.BackoffInitial = def.BackoffInitial
		}
		if cfg.BackoffMax <= 0 {
			cfg.BackoffMax = def.BackoffMax
		}
		if cfg.IdleInterval <= 0 {
			cfg.IdleInterval = def.IdleInterval
		}
		if cfg.ShutdownTimeout <= 0 {
			cfg.ShutdownTimeout = def.ShutdownTimeout
		}
		d.config = cfg
		return nil
	}
}

// WithConcurrency sets the maximum number of concurrently executing bodies.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) error {
		if n <= 0 {
			return ErrInvalidInput
		}
		d.config.Concurrency = n
		return nil
	}
}

// WithFairness sets the cross-queue scheduling policy.
func WithFairness(f Fairness) Option {
	return func(d *Dispatcher) error {
		switch f {
		case FairnessPriority, FairnessRoundRobin:
			d.config.Fairness = f
			return nil
		default:
			return ErrInvalidInput
		}
	}
}

// WithBackoff configures the default exponential retry strategy.
func WithBackoff(initial, maxDelay time.Duration, jitter float64) Option {
	return func(d *Dispatcher) error {
		d.config.BackoffInitial = initial
		d.config.BackoffMax = maxDelay
		d.config.BackoffJitter = jitter
		return nil
	}
}

// WithIdleInterval sets the longest sleep of a parked worker.
func WithIdleInterval(interval time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.IdleInterval = interval
		return nil
	}
}

// WithLogger sets the structured logger for the dispatcher.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the dispatcher.
// The store must implement Storer at minimum; engine.Build additionally
// requires job.Store.
func WithStore(s Storer) Option {
	return func(d *Dispatcher) error {
		d.store = s
		return nil
	}
}
