package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/backoff"
	"github.com/xraph/backlog/ext"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/ledger"
	"github.com/xraph/backlog/store/memory"
	"github.com/xraph/backlog/store/sqlite"
	"github.com/xraph/backlog/worker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptBody runs a caller-supplied function and records failure
// callbacks.
type scriptBody struct {
	tag string
	run func(ctx context.Context, exec *job.Execution) job.Result

	mu       sync.Mutex
	failures []error
}

func (b *scriptBody) TypeTag() string         { return b.tag }
func (b *scriptBody) Encode() ([]byte, error) { return nil, nil }
func (b *scriptBody) Run(ctx context.Context, exec *job.Execution) job.Result {
	return b.run(ctx, exec)
}

func (b *scriptBody) OnFailure(_ context.Context, _ *job.Job, cause error) {
	b.mu.Lock()
	b.failures = append(b.failures, cause)
	b.mu.Unlock()
}

func (b *scriptBody) Failures() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]error(nil), b.failures...)
}

// events records lifecycle hooks.
type events struct {
	mu     sync.Mutex
	seen   []string
	fatals []error
}

func (e *events) Name() string { return "events" }

func (e *events) add(s string) {
	e.mu.Lock()
	e.seen = append(e.seen, s)
	e.mu.Unlock()
}

func (e *events) OnJobStarted(context.Context, *job.Job) error { e.add("started"); return nil }
func (e *events) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	e.add("completed")
	return nil
}

func (e *events) OnJobRetrying(context.Context, *job.Job, int, time.Time) error {
	e.add("retrying")
	return nil
}
func (e *events) OnJobFailed(context.Context, *job.Job, error) error { e.add("failed"); return nil }
func (e *events) OnJobCanceled(context.Context, *job.Job) error      { e.add("canceled"); return nil }
func (e *events) OnJobFatal(_ context.Context, _ *job.Job, cause error) error {
	e.mu.Lock()
	e.fatals = append(e.fatals, cause)
	e.mu.Unlock()
	return nil
}

func (e *events) Seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.seen...)
}

type harness struct {
	ledger   *ledger.Ledger
	store    *memory.Store
	registry *job.Registry
	events   *events
	exec     *worker.Executor
	now      time.Time
}

func newHarness(t *testing.T, bo backoff.Strategy) *harness {
	t.Helper()
	h := &harness{
		store:    memory.New(),
		registry: job.NewRegistry(),
		events:   &events{},
		now:      time.Now().UTC().Truncate(time.Microsecond),
	}
	logger := testLogger()
	h.ledger = ledger.New(h.store, ledger.WithLogger(logger))
	extensions := ext.NewRegistry(logger)
	extensions.Register(h.events)
	h.exec = worker.NewExecutor(h.registry, h.ledger, extensions, bo, logger,
		worker.WithExecutorClock(func() time.Time { return h.now }),
	)
	return h
}

func (h *harness) register(b *scriptBody) {
	h.registry.Register(b.tag, job.FactoryFunc(func([]byte) (job.Body, error) { return b, nil }))
}

func (h *harness) enqueue(t *testing.T, tag string, opts ...job.Option) *job.Job {
	t.Helper()
	j := job.New(tag, nil, job.Apply(opts...))
	if err := h.ledger.Enqueue(context.Background(), j); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return j
}

// step claims one record and executes it.
func (h *harness) step(t *testing.T) *job.Job {
	t.Helper()
	c, err := h.ledger.Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if c.Job == nil {
		t.Fatal("nothing claimable")
	}
	_ = h.exec.Execute(context.Background(), c.Job)
	return c.Job
}

func persisted(t *testing.T, s *memory.Store) int {
	t.Helper()
	jobs, err := s.LoadJobs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return len(jobs)
}

func TestExecutor_Success(t *testing.T) {
	h := newHarness(t, backoff.NewConstant(0))
	b := &scriptBody{tag: "ok", run: func(context.Context, *job.Execution) job.Result { return job.Success() }}
	h.register(b)
	h.enqueue(t, "ok")

	h.step(t)

	if h.ledger.Len() != 0 || persisted(t, h.store) != 0 {
		t.Errorf("record not removed: ledger=%d store=%d", h.ledger.Len(), persisted(t, h.store))
	}
	if got := h.events.Seen(); len(got) != 2 || got[1] != "completed" {
		t.Errorf("events = %v", got)
	}
}

func TestExecutor_RetryUsesExplicitDelay(t *testing.T) {
	h := newHarness(t, backoff.NewConstant(time.Hour))
	b := &scriptBody{tag: "rl", run: func(context.Context, *job.Execution) job.Result {
		return job.RetryAfter(30 * time.Second)
	}}
	h.register(b)
	j := h.enqueue(t, "rl")

	h.step(t)

	got, state, err := h.ledger.Get(j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Attempt != 1 || got.Running {
		t.Errorf("attempt=%d running=%v", got.Attempt, got.Running)
	}
	if want := h.now.Add(30 * time.Second); !got.NextEligibleAt.Equal(want) {
		t.Errorf("NextEligibleAt = %v, want %v", got.NextEligibleAt, want)
	}
	if state != job.StateRetryPending {
		t.Errorf("state = %q", state)
	}
}

func TestExecutor_RetryBackoffGrows(t *testing.T) {
	h := newHarness(t, backoff.NewExponential(time.Second, time.Minute))
	b := &scriptBody{tag: "flaky", run: func(context.Context, *job.Execution) job.Result { return job.Retry() }}
	h.register(b)
	j := h.enqueue(t, "flaky", job.WithMaxAttempts(job.Unlimited))

	h.step(t)
	got, _, _ := h.ledger.Get(j.ID)
	if want := h.now.Add(time.Second); !got.NextEligibleAt.Equal(want) {
		t.Fatalf("first gate = %v, want %v", got.NextEligibleAt, want)
	}
}

func TestExecutor_BoundedRetries(t *testing.T) {
	h := newHarness(t, backoff.NewConstant(0))
	var attempts int
	b := &scriptBody{tag: "always-retry", run: func(context.Context, *job.Execution) job.Result {
		attempts++
		return job.Retry()
	}}
	h.register(b)
	h.enqueue(t, "always-retry", job.WithMaxAttempts(3))

	for range 3 {
		h.step(t)
	}

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if h.ledger.Len() != 0 {
		t.Errorf("record still pending after exhausting attempts")
	}
	failures := b.Failures()
	if len(failures) != 1 || !errors.Is(failures[0], backlog.ErrMaxAttemptsExceeded) {
		t.Errorf("failures = %v", failures)
	}
}

func TestExecutor_UnclassifiedErrorKeptAsCause(t *testing.T) {
	h := newHarness(t, backoff.NewConstant(0))
	boom := errors.New("connection reset")
	def := job.NewDefinition("net", func(context.Context, *job.Execution, struct{}) error { return boom })
	var causes []error
	def.OnFailure(func(_ context.Context, _ *job.Job, _ struct{}, cause error) { causes = append(causes, cause) })
	job.RegisterDefinition(h.registry, def)
	h.enqueue(t, "net", job.WithMaxAttempts(1))

	h.step(t)

	if len(causes) != 1 || !errors.Is(causes[0], boom) || !errors.Is(causes[0], backlog.ErrMaxAttemptsExceeded) {
		t.Errorf("causes = %v", causes)
	}
}

func TestExecutor_PanicIsFatal(t *testing.T) {
	h := newHarness(t, backoff.NewConstant(0))
	b := &scriptBody{tag: "bug", run: func(context.Context, *job.Execution) job.Result { panic("nil map") }}
	h.register(b)
	h.enqueue(t, "bug", job.WithMaxAttempts(5))

	h.step(t)

	if h.ledger.Len() != 0 {
		t.Error("fatal record should be removed")
	}
	if len(b.Failures()) != 1 {
		t.Errorf("failure callbacks = %d, want 1", len(b.Failures()))
	}
	if len(h.events.fatals) != 1 {
		t.Errorf("fatal diagnostics = %d, want 1", len(h.events.fatals))
	}
}

func TestExecutor_UnknownTypeIsFatal(t *testing.T) {
	h := newHarness(t, backoff.NewConstant(0))
	h.enqueue(t, "gone")

	h.step(t)

	if h.ledger.Len() != 0 {
		t.Error("record of unknown type should be removed")
	}
	if len(h.events.fatals) != 1 || !errors.Is(h.events.fatals[0], backlog.ErrUnknownType) {
		t.Errorf("fatals = %v", h.events.fatals)
	}
}

func TestExecutor_FailureCascades(t *testing.T) {
	h := newHarness(t, backoff.NewConstant(0))
	parent := &scriptBody{tag: "parent", run: func(context.Context, *job.Execution) job.Result {
		return job.Failure(errors.New("rejected"))
	}}
	child := &scriptBody{tag: "child", run: func(context.Context, *job.Execution) job.Result {
		t.Error("child must not run")
		return job.Success()
	}}
	h.register(parent)
	h.register(child)

	p := h.enqueue(t, "parent")
	c1 := h.enqueue(t, "child", job.WithQueue("a"), job.WithDependsOn(p.ID))
	h.enqueue(t, "child", job.WithQueue("b"), job.WithDependsOn(p.ID, c1.ID))

	h.step(t)

	if h.ledger.Len() != 0 {
		t.Errorf("ledger len = %d, want 0", h.ledger.Len())
	}
	if len(parent.Failures()) != 1 {
		t.Errorf("parent failures = %d", len(parent.Failures()))
	}
	cf := child.Failures()
	if len(cf) != 2 {
		t.Fatalf("child failures = %d, want 2", len(cf))
	}
	for _, err := range cf {
		if !errors.Is(err, backlog.ErrParentFailed) {
			t.Errorf("child cause = %v", err)
		}
	}
}

func TestExecutor_CanceledWhileRunning(t *testing.T) {
	h := newHarness(t, backoff.NewConstant(0))
	var sawCtx, sawFlag bool
	var self *job.Job
	b := &scriptBody{tag: "upload"}
	b.run = func(ctx context.Context, exec *job.Execution) job.Result {
		if _, err := h.ledger.Cancel(context.Background(), self.ID); err != nil {
			t.Errorf("Cancel: %v", err)
		}
		sawCtx = ctx.Err() != nil
		sawFlag = exec.Canceled()
		return job.Retry()
	}
	h.register(b)
	self = h.enqueue(t, "upload")
	dependent := &scriptBody{tag: "send", run: func(context.Context, *job.Execution) job.Result { return job.Success() }}
	h.register(dependent)
	h.enqueue(t, "send", job.WithQueue("other"), job.WithDependsOn(self.ID))

	h.step(t)

	if !sawCtx || !sawFlag {
		t.Errorf("body saw ctx=%v flag=%v", sawCtx, sawFlag)
	}
	if len(b.Failures()) != 0 {
		t.Error("canceled record must not get a failure callback")
	}
	if len(dependent.Failures()) != 1 {
		t.Errorf("dependent failures = %d, want 1", len(dependent.Failures()))
	}
	seen := h.events.Seen()
	if seen[len(seen)-2] != "canceled" || seen[len(seen)-1] != "failed" {
		t.Errorf("events = %v", seen)
	}
}

func TestExecutor_SuccessAfterCancelRequestKept(t *testing.T) {
	h := newHarness(t, backoff.NewConstant(0))
	var self *job.Job
	b := &scriptBody{tag: "send"}
	b.run = func(context.Context, *job.Execution) job.Result {
		_, _ = h.ledger.Cancel(context.Background(), self.ID)
		return job.Success()
	}
	h.register(b)
	self = h.enqueue(t, "send")

	h.step(t)

	if got := h.events.Seen(); got[len(got)-1] != "completed" {
		t.Errorf("events = %v", got)
	}
}

func TestExecutor_ResolveExpired(t *testing.T) {
	h := newHarness(t, backoff.NewConstant(0))
	b := &scriptBody{tag: "stale", run: func(context.Context, *job.Execution) job.Result { return job.Success() }}
	h.register(b)
	j := h.enqueue(t, "stale")

	h.exec.Resolve(context.Background(), []ledger.Resolved{
		{Job: j, State: job.StateFailed, Cause: backlog.ErrLifespanExpired},
	})

	if f := b.Failures(); len(f) != 1 || !errors.Is(f[0], backlog.ErrLifespanExpired) {
		t.Errorf("failures = %v", f)
	}
}

func TestExecutor_CommitSurvivesAttemptCancel(t *testing.T) {
	tests := []struct {
		name    string
		result  job.Result
		pending int
	}{
		{"success", job.Success(), 0},
		{"retry", job.Retry(), 1},
		{"failure", job.Failure(errors.New("rejected")), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "backlog.db"))
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { _ = s.Close() })

			logger := testLogger()
			registry := job.NewRegistry()
			l := ledger.New(s, ledger.WithLogger(logger))
			exec := worker.NewExecutor(registry, l, ext.NewRegistry(logger), backoff.NewConstant(time.Hour), logger)

			attemptCtx, stop := context.WithCancel(ctx)
			defer stop()
			b := &scriptBody{tag: "send", run: func(context.Context, *job.Execution) job.Result {
				// Shutdown timed out while the body was finishing.
				stop()
				return tt.result
			}}
			registry.Register(b.tag, job.FactoryFunc(func([]byte) (job.Body, error) { return b, nil }))

			if err := l.Enqueue(ctx, job.New("send", nil, job.Apply(job.WithMaxAttempts(5)))); err != nil {
				t.Fatal(err)
			}
			c, err := l.Claim(ctx)
			if err != nil || c.Job == nil {
				t.Fatalf("Claim = %+v, %v", c, err)
			}
			if err := exec.Execute(attemptCtx, c.Job); err != nil {
				t.Fatalf("Execute: %v", err)
			}

			rows, err := s.LoadJobs(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(rows) != tt.pending || l.Len() != tt.pending {
				t.Fatalf("store has %d rows, ledger %d, want %d", len(rows), l.Len(), tt.pending)
			}
			for _, r := range rows {
				if r.Running || r.Attempt != 1 {
					t.Errorf("persisted running=%v attempt=%d, want false/1", r.Running, r.Attempt)
				}
			}
		})
	}
}
