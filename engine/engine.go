// Package engine wires all backlog subsystems together. It creates the
// extension registry, job registry, constraint registry, ledger, middleware
// chain and worker pool, and provides the submission, cancellation and
// query API.
//
// This package exists to break the import cycle: the root backlog package
// defines the sentinel errors and configuration imported by every
// subsystem and so cannot import those packages back. The engine package
// sits above all subsystem packages and below the application layer.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/backoff"
	"github.com/xraph/backlog/constraint"
	"github.com/xraph/backlog/ext"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/ledger"
	mw "github.com/xraph/backlog/middleware"
	"github.com/xraph/backlog/observability"
	"github.com/xraph/backlog/queue"
	"github.com/xraph/backlog/scheduler"
	"github.com/xraph/backlog/tracker"
	"github.com/xraph/backlog/worker"
)

// Engine wraps a Dispatcher with typed subsystem access.
// Use Build() to create one from a Dispatcher.
type Engine struct {
	d           *backlog.Dispatcher
	extensions  *ext.Registry
	registry    *job.Registry
	constraints *constraint.Registry
	limits      *queue.Manager
	ledger      *ledger.Ledger
	executor    *worker.Executor
	pool        *worker.Pool
	tracker     *tracker.Tracker
	bo          backoff.Strategy
	mws         []mw.Middleware
	env         any
	logger      *slog.Logger

	typeConfigs []queue.TypeConfig
	metrics     *observability.MetricsExtension
	registerer  prometheus.Registerer

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	loaded bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy for the engine.
// If not set, an exponential strategy built from the Dispatcher's Config
// is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithTypeConfig registers per-type concurrency caps and rate limits.
// Types not listed have no operator-level limits.
func WithTypeConfig(configs ...queue.TypeConfig) Option {
	return func(eng *Engine) {
		eng.typeConfigs = append(eng.typeConfigs, configs...)
	}
}

// WithConstraint registers a named eligibility predicate.
func WithConstraint(name string, c constraint.Constraint) Option {
	return func(eng *Engine) {
		eng.constraints.Register(name, c)
	}
}

// WithEnv sets the opaque environment handed to every body through
// job.Execution.Env.
func WithEnv(env any) Option {
	return func(eng *Engine) {
		eng.env = env
	}
}

// WithPrometheus registers the lifecycle metrics extension on reg.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(eng *Engine) {
		eng.registerer = reg
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Dispatcher.
// A Dispatcher without a store keeps every record in memory; otherwise the
// store must implement job.Store.
func Build(d *backlog.Dispatcher, opts ...Option) (*Engine, error) {
	logger := d.Logger()
	config := d.Config()

	var js job.Store
	if store := d.Store(); store != nil {
		var ok bool
		js, ok = store.(job.Store)
		if !ok {
			return nil, fmt.Errorf("backlog: store does not implement job.Store")
		}
	}

	policy, err := scheduler.New(config.Fairness)
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		d:           d,
		extensions:  ext.NewRegistry(logger),
		registry:    job.NewRegistry(),
		constraints: constraint.NewRegistry(),
		tracker:     tracker.New(logger),
		logger:      logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.NewExponentialWithJitter(config.BackoffInitial, config.BackoffMax, config.BackoffJitter)
	}

	eng.extensions.Register(eng.tracker)
	if eng.registerer != nil {
		eng.metrics = observability.NewMetricsExtensionWithRegisterer(eng.registerer)
		eng.extensions.Register(eng.metrics)
	}

	eng.limits = queue.NewManager(eng.typeConfigs...)
	eng.ledger = ledger.New(js,
		ledger.WithLogger(logger),
		ledger.WithPolicy(policy),
		ledger.WithConstraints(eng.constraints),
		ledger.WithLimits(eng.limits),
	)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/backlog"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/backlog"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default stack: tracing → metrics → logging → timeout → (user) → recover → body.
	allMws := []mw.Middleware{
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger),
	}
	allMws = append(allMws, eng.mws...)

	eng.executor = worker.NewExecutor(eng.registry, eng.ledger, eng.extensions, eng.bo, logger,
		worker.WithEnv(eng.env),
		worker.WithMiddleware(allMws...),
	)
	eng.pool = worker.NewPool(eng.ledger, eng.executor, eng.extensions, logger,
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithIdleInterval(config.IdleInterval),
	)

	// Wire back into the Dispatcher.
	d.SetPool(eng.pool)
	d.SetExtensions(eng.extensions)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// RegisterFactory binds a type tag to a hand-written Factory.
func (eng *Engine) RegisterFactory(typeTag string, f job.Factory) {
	eng.registry.Register(typeTag, f)
}

// Enqueue submits a typed payload of a registered definition.
func Enqueue[T any](ctx context.Context, eng *Engine, def *job.Definition[T], payload T, opts ...job.Option) (id.JobID, error) {
	return eng.Enqueue(ctx, def.New(payload), opts...)
}

// Enqueue submits body. Options supplied by the body (job.Defaulter) are
// applied first, then opts. The record is persisted, unless memory-only,
// before Enqueue returns.
func (eng *Engine) Enqueue(ctx context.Context, body job.Body, opts ...job.Option) (id.JobID, error) {
	j, err := eng.build(body, opts)
	if err != nil {
		return id.JobID{}, err
	}
	if err := eng.ledger.Enqueue(ctx, j); err != nil {
		return id.JobID{}, err
	}
	eng.extensions.EmitJobEnqueued(ctx, j)
	return j.ID, nil
}

// build turns a body into a record without enqueuing it.
func (eng *Engine) build(body job.Body, opts []job.Option) (*job.Job, error) {
	if body == nil {
		return nil, fmt.Errorf("%w: nil body", backlog.ErrInvalidInput)
	}
	tag := body.TypeTag()
	if _, ok := eng.registry.Get(tag); !ok {
		return nil, fmt.Errorf("%w: %q", backlog.ErrUnknownType, tag)
	}
	payload, err := body.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode %q payload: %w", tag, err)
	}

	var all []job.Option
	if d, ok := body.(job.Defaulter); ok {
		all = append(all, d.DefaultOptions()...)
	}
	all = append(all, opts...)
	o := job.Apply(all...)
	if err := validate(o); err != nil {
		return nil, err
	}
	return job.New(tag, payload, o), nil
}

func validate(o job.Options) error {
	switch {
	case o.MaxAttempts == 0 || o.MaxAttempts < job.Unlimited:
		return fmt.Errorf("%w: max attempts %d", backlog.ErrInvalidInput, o.MaxAttempts)
	case o.Lifespan < 0:
		return fmt.Errorf("%w: negative lifespan", backlog.ErrInvalidInput)
	case o.MaxConcurrentForType < 0:
		return fmt.Errorf("%w: negative type cap", backlog.ErrInvalidInput)
	case o.Delay < 0 || o.Timeout < 0:
		return fmt.Errorf("%w: negative duration", backlog.ErrInvalidInput)
	}
	return nil
}

// Cancel requests cancellation of a pending record. A record that is not
// running resolves Canceled at once and its dependents are cascade-failed;
// a running record is interrupted cooperatively.
func (eng *Engine) Cancel(ctx context.Context, jobID id.JobID) error {
	resolved, err := eng.ledger.Cancel(ctx, jobID)
	eng.executor.Resolve(ctx, resolved)
	return err
}

// CancelQueue cancels every pending record of queueKey.
func (eng *Engine) CancelQueue(ctx context.Context, queueKey string) error {
	resolved, err := eng.ledger.CancelQueue(ctx, queueKey)
	eng.executor.Resolve(ctx, resolved)
	return err
}

// CancelAll cancels every pending record of typeTag.
func (eng *Engine) CancelAll(ctx context.Context, typeTag string) error {
	resolved, err := eng.ledger.CancelType(ctx, typeTag)
	eng.executor.Resolve(ctx, resolved)
	return err
}

// Query returns the IDs of pending records matching pred, in dispatch
// order.
func (eng *Engine) Query(pred func(*job.Job) bool) []id.JobID {
	return eng.ledger.Query(pred)
}

// FindByType returns copies of the pending records of typeTag.
func (eng *Engine) FindByType(typeTag string) []*job.Job {
	return eng.ledger.FindByType(typeTag)
}

// Get returns a copy of a pending record and its current state.
func (eng *Engine) Get(jobID id.JobID) (*job.Job, job.State, error) {
	return eng.ledger.Get(jobID)
}

// Stats returns ledger counters.
func (eng *Engine) Stats() ledger.Stats { return eng.ledger.Stats() }

// Watch streams the state transitions of a pending record. The channel
// closes after its terminal update.
func (eng *Engine) Watch(jobID id.JobID) (*tracker.Subscriber, error) {
	sub := eng.tracker.Watch(jobID)
	if _, _, err := eng.ledger.Get(jobID); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// Start reloads persisted records, resetting interrupted attempts, and
// begins processing.
func (eng *Engine) Start(ctx context.Context) error {
	if !eng.loaded {
		n, err := eng.ledger.Load(ctx)
		if err != nil {
			return fmt.Errorf("backlog: reload jobs: %w", err)
		}
		eng.loaded = true
		if n > 0 {
			eng.logger.Info("jobs reloaded", slog.Int("count", n))
		}
		eng.extensions.EmitJobsRecovered(ctx, n)
	}
	return eng.d.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.d.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Constraints returns the constraint registry.
func (eng *Engine) Constraints() *constraint.Registry { return eng.constraints }

// Limits returns the concurrency and rate-limit manager.
func (eng *Engine) Limits() *queue.Manager { return eng.limits }

// Ledger returns the in-memory ledger.
func (eng *Engine) Ledger() *ledger.Ledger { return eng.ledger }

// Tracker returns the state-transition tracker.
func (eng *Engine) Tracker() *tracker.Tracker { return eng.tracker }

// Metrics returns the Prometheus extension, or nil if WithPrometheus was
// not used.
func (eng *Engine) Metrics() *observability.MetricsExtension { return eng.metrics }

// Dispatcher returns the underlying Dispatcher.
func (eng *Engine) Dispatcher() *backlog.Dispatcher { return eng.d }
