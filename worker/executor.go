// Package worker provides the job execution engine: an Executor that runs
// one attempt through middleware and interprets its Result, and a Pool of
// worker goroutines that claim records from the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/backoff"
	"github.com/xraph/backlog/ext"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/ledger"
	"github.com/xraph/backlog/middleware"
)

// Executor runs a single attempt through middleware and the decoded body,
// then commits the outcome to the ledger, fires failure callbacks and emits
// lifecycle events.
type Executor struct {
	registry   *job.Registry
	ledger     *ledger.Ledger
	extensions *ext.Registry
	backoff    backoff.Strategy
	mws        []middleware.Middleware
	mw         middleware.Middleware
	env        any
	logger     *slog.Logger
	now        func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithEnv sets the opaque environment handed to every body.
func WithEnv(env any) ExecutorOption {
	return func(e *Executor) { e.env = env }
}

// WithMiddleware appends middleware around every attempt. A panic
// recovery layer is always installed closest to the body.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mws = append(e.mws, mws...) }
}

// WithExecutorClock overrides the time source used for backoff gates.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	l *ledger.Ledger,
	extensions *ext.Registry,
	bo backoff.Strategy,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		registry:   registry,
		ledger:     l,
		extensions: extensions,
		backoff:    bo,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.mw = middleware.Chain(append(e.mws, middleware.Recover(logger))...)
	return e
}

// Execute runs one attempt of a claimed record and commits its outcome.
// The body runs under a child of attemptCtx that Cancel and the record's
// Timeout can interrupt. The outcome is committed under a context that
// keeps attemptCtx's values but not its cancellation, so a shutdown that
// cancels the attempt cannot lose an outcome the body already produced.
func (e *Executor) Execute(attemptCtx context.Context, j *job.Job) error {
	body, decodeErr := e.registry.Decode(j)

	ctx := context.WithoutCancel(attemptCtx)
	runCtx, cancel := context.WithCancel(attemptCtx)
	defer cancel()
	e.ledger.Track(j.ID, cancel)

	e.extensions.EmitJobStarted(ctx, j)
	start := time.Now()

	var res job.Result
	if decodeErr != nil {
		res = job.FatalFailure(decodeErr)
	} else {
		exec := job.NewExecution(j, e.env, func() bool { return e.ledger.IsCanceled(j.ID) })
		res = e.mw(runCtx, j, func(ctx context.Context) job.Result {
			return body.Run(ctx, exec)
		})
	}
	elapsed := time.Since(start)

	// A body that finished its work before noticing the request keeps its
	// Success.
	if !res.IsSuccess() && e.ledger.IsCanceled(j.ID) {
		return e.handleCanceled(ctx, j, body)
	}

	switch res.Kind() {
	case job.KindSuccess:
		return e.handleSuccess(ctx, j, elapsed)
	case job.KindRetry:
		return e.handleRetry(ctx, j, body, res)
	case job.KindFatal:
		cause := causeOf(j, res)
		e.logger.Error("job fatal failure",
			slog.String("job_id", j.ID.String()),
			slog.String("type", j.TypeTag),
			slog.String("error", cause.Error()),
		)
		e.extensions.EmitJobFatal(ctx, j, cause)
		return e.handleFailure(ctx, j, body, cause)
	default:
		return e.handleFailure(ctx, j, body, causeOf(j, res))
	}
}

// handleSuccess removes the record and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	if err := e.ledger.CommitSuccess(ctx, j.ID); err != nil {
		e.logger.Error("failed to commit job success",
			slog.String("job_id", j.ID.String()),
			slog.String("type", j.TypeTag),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, backlog.ErrJobNotFound) {
			return err
		}
	}
	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// handleRetry counts the attempt and gates the record behind its backoff,
// or converts the retry to a failure once the attempt budget is spent.
func (e *Executor) handleRetry(ctx context.Context, j *job.Job, body job.Body, res job.Result) error {
	attempt := j.Attempt + 1
	if j.AttemptsExhausted(attempt) {
		cause := fmt.Errorf("%w: %d/%d", backlog.ErrMaxAttemptsExceeded, attempt, j.MaxAttempts)
		if last := res.Err(); last != nil {
			cause = fmt.Errorf("%w: %d/%d: %w", backlog.ErrMaxAttemptsExceeded, attempt, j.MaxAttempts, last)
		}
		return e.handleFailure(ctx, j, body, cause)
	}

	explicit, hasExplicit := res.Delay()
	delay := backoff.For(e.backoff, attempt, explicit, hasExplicit)
	nextEligibleAt := e.now().Add(delay)

	if err := e.ledger.CommitRetry(ctx, j.ID, nextEligibleAt); err != nil {
		e.logger.Error("failed to commit job retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, backlog.ErrJobNotFound) {
			return err
		}
	}
	e.extensions.EmitJobRetrying(ctx, j, attempt, nextEligibleAt)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("type", j.TypeTag),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
	)
	return nil
}

// handleFailure removes the record and every transitive dependent, firing
// each failure callback once.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, body job.Body, cause error) error {
	resolved, err := e.ledger.CommitFailure(ctx, j.ID, cause)
	if err != nil {
		e.logger.Error("failed to commit job failure",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	e.resolve(ctx, resolved, j, body)
	return err
}

func (e *Executor) handleCanceled(ctx context.Context, j *job.Job, body job.Body) error {
	resolved, err := e.ledger.CommitCanceled(ctx, j.ID)
	if err != nil {
		e.logger.Error("failed to commit job cancellation",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	e.logger.Info("job canceled",
		slog.String("job_id", j.ID.String()),
		slog.String("type", j.TypeTag),
	)
	e.resolve(ctx, resolved, j, body)
	return err
}

// Resolve fires the failure callbacks and lifecycle events of records the
// ledger resolved outside an attempt: expired records, canceled records
// and their cascaded dependents.
func (e *Executor) Resolve(ctx context.Context, resolved []ledger.Resolved) {
	e.resolve(ctx, resolved, nil, nil)
}

// resolve settles each resolved record. known/knownBody let the caller
// reuse a body it already decoded.
func (e *Executor) resolve(ctx context.Context, resolved []ledger.Resolved, known *job.Job, knownBody job.Body) {
	for _, r := range resolved {
		switch r.State {
		case job.StateCanceled:
			e.extensions.EmitJobCanceled(ctx, r.Job)
		case job.StateFailed:
			body := knownBody
			if known == nil || r.Job.ID != known.ID || body == nil {
				var err error
				if body, err = e.registry.Decode(r.Job); err != nil {
					e.logger.Warn("cannot decode failed job for its failure callback",
						slog.String("job_id", r.Job.ID.String()),
						slog.String("type", r.Job.TypeTag),
						slog.String("error", err.Error()),
					)
					body = nil
				}
			}
			if body != nil {
				e.onFailure(ctx, body, r.Job, r.Cause)
			}
			e.extensions.EmitJobFailed(ctx, r.Job, r.Cause)
		}
	}
}

// onFailure calls the body's failure callback. A panicking callback is
// logged and swallowed.
func (e *Executor) onFailure(ctx context.Context, body job.Body, j *job.Job, cause error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("failure callback panicked",
				slog.String("job_id", j.ID.String()),
				slog.String("type", j.TypeTag),
				slog.Any("panic", r),
			)
		}
	}()
	body.OnFailure(ctx, j, cause)
}

func causeOf(j *job.Job, res job.Result) error {
	if err := res.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", backlog.ErrJobFailed, j.TypeTag)
}
