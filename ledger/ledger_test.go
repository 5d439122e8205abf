package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/constraint"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/ledger"
	"github.com/xraph/backlog/queue"
	"github.com/xraph/backlog/scheduler"
	"github.com/xraph/backlog/store/memory"
)

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newJob(typeTag string, opts ...job.Option) *job.Job {
	return job.New(typeTag, nil, job.Apply(opts...))
}

func enqueue(t *testing.T, l *ledger.Ledger, jobs ...*job.Job) {
	t.Helper()
	if err := l.Enqueue(context.Background(), jobs...); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func claim(t *testing.T, l *ledger.Ledger) *ledger.Claim {
	t.Helper()
	c, err := l.Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	return c
}

func mustClaim(t *testing.T, l *ledger.Ledger) *job.Job {
	t.Helper()
	c := claim(t, l)
	if c.Job == nil {
		t.Fatal("expected a claim, got none")
	}
	return c.Job
}

func mustIdle(t *testing.T, l *ledger.Ledger) *ledger.Claim {
	t.Helper()
	c := claim(t, l)
	if c.Job != nil {
		t.Fatalf("expected no claim, got %s (%s)", c.Job.ID, c.Job.QueueKey)
	}
	return c
}

func persisted(t *testing.T, s *memory.Store) int {
	t.Helper()
	jobs, err := s.LoadJobs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return len(jobs)
}

// ──────────────────────────────────────────────────
// Ordering and caps
// ──────────────────────────────────────────────────

func TestClaim_FIFOPerQueue(t *testing.T) {
	l := ledger.New(memory.New())
	ctx := context.Background()

	var want []id.JobID
	for range 5 {
		j := newJob("send", job.WithQueue("Q"))
		enqueue(t, l, j)
		want = append(want, j.ID)
	}

	for i, w := range want {
		got := mustClaim(t, l)
		if got.ID != w {
			t.Fatalf("claim %d: got %s, want %s", i, got.ID, w)
		}
		// Same queue must not yield another record while one runs.
		mustIdle(t, l)
		if err := l.CommitSuccess(ctx, got.ID); err != nil {
			t.Fatal(err)
		}
	}
	mustIdle(t, l)
}

func TestClaim_HeadBlocksQueue(t *testing.T) {
	reg := constraint.NewRegistry()
	net := constraint.NewFlag(false)
	reg.Register("network", net)
	l := ledger.New(memory.New(), ledger.WithConstraints(reg))

	head := newJob("send", job.WithQueue("Q"), job.WithConstraints("network"))
	tail := newJob("send", job.WithQueue("Q"))
	enqueue(t, l, head, tail)

	mustIdle(t, l)

	net.Set(true)
	if got := mustClaim(t, l); got.ID != head.ID {
		t.Fatalf("got %s, want head", got.ID)
	}
}

func TestClaim_MaxConcurrentForQueue(t *testing.T) {
	l := ledger.New(memory.New())
	a := newJob("x", job.WithQueue("Q"), job.WithMaxConcurrentForQueue(2))
	b := newJob("x", job.WithQueue("Q"), job.WithMaxConcurrentForQueue(2))
	c := newJob("x", job.WithQueue("Q"), job.WithMaxConcurrentForQueue(2))
	enqueue(t, l, a, b, c)

	if got := mustClaim(t, l); got.ID != a.ID {
		t.Fatal("first claim should be a")
	}
	if got := mustClaim(t, l); got.ID != b.ID {
		t.Fatal("second claim should be b")
	}
	mustIdle(t, l)
}

func TestClaim_MaxConcurrentForType(t *testing.T) {
	l := ledger.New(memory.New())
	for range 3 {
		enqueue(t, l, newJob("upload", job.WithMaxConcurrentForType(2)))
	}
	other := newJob("download")
	enqueue(t, l, other)

	seen := map[string]int{}
	for range 3 {
		seen[mustClaim(t, l).TypeTag]++
	}
	mustIdle(t, l)
	if seen["upload"] != 2 || seen["download"] != 1 {
		t.Fatalf("claims by type = %v", seen)
	}
}

func TestClaim_PriorityAcrossQueues(t *testing.T) {
	l := ledger.New(memory.New())
	low := newJob("x", job.WithQueue("a"))
	high := newJob("x", job.WithQueue("b"), job.WithPriority(10))
	loose := newJob("x", job.WithPriority(5))
	enqueue(t, l, low, high, loose)

	order := []id.JobID{high.ID, loose.ID, low.ID}
	for i, want := range order {
		if got := mustClaim(t, l); got.ID != want {
			t.Fatalf("claim %d: got %s, want %s", i, got.ID, want)
		}
	}
}

func TestClaim_RoundRobin(t *testing.T) {
	l := ledger.New(memory.New(), ledger.WithPolicy(scheduler.NewRoundRobin()))
	ctx := context.Background()

	for range 3 {
		enqueue(t, l, newJob("x", job.WithQueue("hot"), job.WithPriority(10)))
	}
	enqueue(t, l, newJob("x", job.WithQueue("cold")))

	first := mustClaim(t, l)
	if first.QueueKey != "hot" {
		t.Fatalf("first claim from %q, want hot", first.QueueKey)
	}
	if err := l.CommitSuccess(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if second := mustClaim(t, l); second.QueueKey != "cold" {
		t.Fatalf("second claim from %q, want cold", second.QueueKey)
	}
}

func TestClaim_RateLimitedTypeReportsWake(t *testing.T) {
	clk := newClock()
	limits := queue.NewManager(queue.TypeConfig{TypeTag: "poll", RateLimit: 1, RateBurst: 1})
	l := ledger.New(memory.New(), ledger.WithLimits(limits), ledger.WithClock(clk.Now))
	ctx := context.Background()

	a, b := newJob("poll"), newJob("poll")
	enqueue(t, l, a, b)

	got := mustClaim(t, l)
	if err := l.CommitSuccess(ctx, got.ID); err != nil {
		t.Fatal(err)
	}
	c := mustIdle(t, l)
	if c.NextWake.IsZero() || c.NextWake.After(clk.Now().Add(time.Second)) {
		t.Fatalf("NextWake = %v", c.NextWake)
	}
	clk.Advance(time.Second)
	mustClaim(t, l)
}

func TestClaim_ConcurrentCallersNeverShare(t *testing.T) {
	l := ledger.New(memory.New())
	const n = 200
	for range n {
		enqueue(t, l, newJob("x"))
	}

	var (
		mu      sync.Mutex
		claimed = map[id.JobID]int{}
		wg      sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				c, err := l.Claim(context.Background())
				if err != nil || c.Job == nil {
					return
				}
				mu.Lock()
				claimed[c.Job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != n {
		t.Fatalf("claimed %d distinct records, want %d", len(claimed), n)
	}
	for jid, count := range claimed {
		if count != 1 {
			t.Fatalf("%s claimed %d times", jid, count)
		}
	}
}

func TestClaim_RollsBackOnStoreError(t *testing.T) {
	s := memory.New()
	l := ledger.New(s)
	j := newJob("x")
	enqueue(t, l, j)

	boom := errors.New("io")
	s.FailNextWrite(boom)
	if _, err := l.Claim(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	got, state, err := l.Get(j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Running || state != job.StateEligible {
		t.Fatalf("claim not rolled back: running=%v state=%s", got.Running, state)
	}
	if c := mustClaim(t, l); c.ID != j.ID {
		t.Fatal("record should be claimable after rollback")
	}
}

// ──────────────────────────────────────────────────
// Retry and backoff
// ──────────────────────────────────────────────────

func TestCommitRetry_GatesUntilNextEligible(t *testing.T) {
	clk := newClock()
	l := ledger.New(memory.New(), ledger.WithClock(clk.Now))
	ctx := context.Background()

	j := newJob("x", job.WithQueue("Q"))
	later := newJob("x", job.WithQueue("Q"))
	enqueue(t, l, j, later)

	got := mustClaim(t, l)
	if err := l.CommitRetry(ctx, got.ID, clk.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	// The retried head still blocks its queue.
	c := mustIdle(t, l)
	if !c.NextWake.Equal(clk.Now().Add(time.Minute)) {
		t.Fatalf("NextWake = %v, want %v", c.NextWake, clk.Now().Add(time.Minute))
	}
	if _, st, _ := l.Get(j.ID); st != job.StateRetryPending {
		t.Fatalf("state = %s", st)
	}

	clk.Advance(time.Minute)
	again := mustClaim(t, l)
	if again.ID != j.ID || again.Attempt != 1 {
		t.Fatalf("got %s attempt %d", again.ID, again.Attempt)
	}
}

func TestCommit_RequiresRunning(t *testing.T) {
	l := ledger.New(memory.New())
	ctx := context.Background()
	j := newJob("x")
	enqueue(t, l, j)

	if err := l.CommitSuccess(ctx, j.ID); !errors.Is(err, backlog.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if err := l.CommitRetry(ctx, id.NewJobID(), time.Now()); !errors.Is(err, backlog.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Dependencies
// ──────────────────────────────────────────────────

func TestDependency_ChildWaitsForParent(t *testing.T) {
	l := ledger.New(memory.New())
	ctx := context.Background()

	parent := newJob("x", job.WithQueue("p"))
	child := newJob("x", job.WithQueue("c"), job.WithDependsOn(parent.ID))
	enqueue(t, l, parent, child)

	got := mustClaim(t, l)
	if got.ID != parent.ID {
		t.Fatal("parent should be claimed first")
	}
	mustIdle(t, l)

	if err := l.CommitSuccess(ctx, parent.ID); err != nil {
		t.Fatal(err)
	}
	if got := mustClaim(t, l); got.ID != child.ID {
		t.Fatal("child should run after parent succeeded")
	}
}

func TestDependency_MissingParentIsSatisfied(t *testing.T) {
	l := ledger.New(memory.New())
	child := newJob("x", job.WithDependsOn(id.NewJobID()))
	enqueue(t, l, child)

	if got := mustClaim(t, l); got.ID != child.ID {
		t.Fatal("dependency on an unknown record should not block")
	}
}

func TestDependency_CascadeDiamond(t *testing.T) {
	s := memory.New()
	l := ledger.New(s)
	ctx := context.Background()

	root := newJob("x")
	a := newJob("x", job.WithDependsOn(root.ID))
	b := newJob("x", job.WithDependsOn(root.ID))
	d := newJob("x", job.WithDependsOn(a.ID, b.ID))
	bystander := newJob("x", job.WithQueue("other"))
	enqueue(t, l, root, a, b, d, bystander)

	got := mustClaim(t, l)
	if got.ID != root.ID {
		t.Fatalf("expected root first, got %s", got.ID)
	}
	cause := errors.New("unauthorized")
	resolved, err := l.CommitFailure(ctx, root.ID, cause)
	if err != nil {
		t.Fatal(err)
	}

	if len(resolved) != 4 {
		t.Fatalf("resolved %d records, want 4", len(resolved))
	}
	if resolved[0].Job.ID != root.ID || !errors.Is(resolved[0].Cause, cause) {
		t.Fatalf("first resolved should be root with its cause: %+v", resolved[0])
	}
	seen := map[id.JobID]int{}
	for _, r := range resolved {
		seen[r.Job.ID]++
		if r.State != job.StateFailed {
			t.Errorf("%s state = %s", r.Job.ID, r.State)
		}
		if r.Job.ID != root.ID && !errors.Is(r.Cause, backlog.ErrParentFailed) {
			t.Errorf("%s cause = %v", r.Job.ID, r.Cause)
		}
	}
	for jid, n := range seen {
		if n != 1 {
			t.Errorf("%s resolved %d times", jid, n)
		}
	}

	if l.Len() != 1 {
		t.Fatalf("only the bystander should remain, have %d", l.Len())
	}
	persisted, _ := s.LoadJobs(ctx)
	if len(persisted) != 1 || persisted[0].ID != bystander.ID {
		t.Fatalf("store still holds cascaded records: %d", len(persisted))
	}
}

// ──────────────────────────────────────────────────
// Lifespan
// ──────────────────────────────────────────────────

func TestLifespan_ExpiresBeforeConstraints(t *testing.T) {
	clk := newClock()
	reg := constraint.NewRegistry()
	reg.Register("registered", constraint.NewFlag(false))
	l := ledger.New(memory.New(), ledger.WithClock(clk.Now), ledger.WithConstraints(reg))

	j := newJob("x", job.WithConstraints("registered"), job.WithLifespan(time.Minute))
	child := newJob("x", job.WithDependsOn(j.ID))
	enqueue(t, l, j, child)

	c := mustIdle(t, l)
	if c.NextWake.IsZero() || c.NextWake.After(clk.Now().Add(time.Minute+time.Second)) {
		t.Fatalf("NextWake should point at expiry, got %v", c.NextWake)
	}

	clk.Advance(time.Minute + time.Millisecond)
	c = mustIdle(t, l)
	if len(c.Expired) != 2 {
		t.Fatalf("expired %d, want record and dependent", len(c.Expired))
	}
	if !errors.Is(c.Expired[0].Cause, backlog.ErrLifespanExpired) {
		t.Fatalf("cause = %v", c.Expired[0].Cause)
	}
	if l.Len() != 0 {
		t.Fatalf("%d records remain", l.Len())
	}
}

// ──────────────────────────────────────────────────
// Restart
// ──────────────────────────────────────────────────

func TestLoad_RecoversRunningAndDropsMemoryOnly(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	first := ledger.New(s)
	durable := newJob("x", job.WithQueue("Q"))
	volatile := newJob("x", job.WithMemoryOnly())
	enqueue(t, first, durable, volatile)

	claimed := mustClaim(t, first)
	if claimed.ID != durable.ID && claimed.ID != volatile.ID {
		t.Fatal("unexpected claim")
	}
	// Make sure the durable record is the one marked running.
	if claimed.ID != durable.ID {
		claimed = mustClaim(t, first)
	}
	persisted, _ := s.LoadJobs(ctx)
	if len(persisted) != 1 || !persisted[0].Running {
		t.Fatalf("claim was not persisted: %+v", persisted)
	}

	// Simulated crash: a fresh ledger over the same store.
	second := ledger.New(s)
	n, err := second.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("loaded %d records, want 1 (memory-only must be absent)", n)
	}
	if _, _, err := second.Get(volatile.ID); !errors.Is(err, backlog.ErrJobNotFound) {
		t.Fatal("memory-only record survived restart")
	}

	got := mustClaim(t, second)
	if got.ID != durable.ID {
		t.Fatal("recovered record should be claimable")
	}
	if got.Attempt != 0 {
		t.Fatalf("interrupted attempt should not be counted, attempt=%d", got.Attempt)
	}
	mustIdle(t, second)
	if err := second.CommitSuccess(ctx, got.ID); err != nil {
		t.Fatal(err)
	}
	if persisted, _ := s.LoadJobs(ctx); len(persisted) != 0 {
		t.Fatal("completed record still persisted")
	}
}

func TestLoad_ChildOfMemoryOnlyParentRejected(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	first := ledger.New(s)
	parent := newJob("x", job.WithMemoryOnly(), job.WithConstraints("never"))
	enqueue(t, first, parent)
	child := newJob("x", job.WithDependsOn(parent.ID))
	if err := first.Enqueue(ctx, child); !errors.Is(err, backlog.ErrInvalidInput) {
		t.Fatalf("durable child of pending memory-only parent: err = %v", err)
	}
	sibling := newJob("x", job.WithMemoryOnly())
	batched := newJob("x", job.WithDependsOn(sibling.ID))
	if err := first.Enqueue(ctx, sibling, batched); !errors.Is(err, backlog.ErrInvalidInput) {
		t.Fatalf("durable child of memory-only batch parent: err = %v", err)
	}
	if first.Len() != 1 || persisted(t, s) != 0 {
		t.Fatalf("rejected records leaked: ledger=%d store=%d", first.Len(), persisted(t, s))
	}

	// A memory-only child of a memory-only parent stays gated.
	volatile := newJob("x", job.WithMemoryOnly(), job.WithDependsOn(parent.ID))
	enqueue(t, first, volatile)
	mustIdle(t, first)

	second := ledger.New(s)
	if n, err := second.Load(ctx); err != nil || n != 0 {
		t.Fatalf("Load = %d, %v", n, err)
	}
	mustIdle(t, second)
}

func TestLoad_ResetFailureLeavesLedgerEmpty(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	first := ledger.New(s)
	a, b := newJob("x", job.WithQueue("Q")), newJob("x", job.WithQueue("R"))
	enqueue(t, first, a, b)
	mustClaim(t, first)

	second := ledger.New(s)
	boom := errors.New("io")
	s.FailNextWrite(boom)
	if _, err := second.Load(ctx); !errors.Is(err, boom) {
		t.Fatalf("Load err = %v, want %v", err, boom)
	}
	if second.Len() != 0 {
		t.Fatalf("failed Load left %d records", second.Len())
	}

	n, err := second.Load(ctx)
	if err != nil || n != 2 {
		t.Fatalf("retried Load = %d, %v", n, err)
	}
	mustClaim(t, second)
	mustClaim(t, second)
}

func TestLoad_PreservesOrderAndEdges(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	first := ledger.New(s)
	a := newJob("x", job.WithQueue("Q"))
	b := newJob("x", job.WithQueue("Q"))
	p := newJob("x", job.WithQueue("P"), job.WithConstraints("never"))
	c := newJob("x", job.WithDependsOn(p.ID))
	enqueue(t, first, a, b, p, c)

	second := ledger.New(s)
	if _, err := second.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if got := mustClaim(t, second); got.ID != a.ID {
		t.Fatal("queue order lost across reload")
	}
	mustIdle(t, second)

	// New submissions continue after the persisted sequence.
	d := newJob("x", job.WithQueue("Q"))
	enqueue(t, second, d)
	snap := second.Snapshot()
	var q []id.JobID
	for _, j := range snap {
		if j.QueueKey == "Q" {
			q = append(q, j.ID)
		}
	}
	if len(q) != 3 || q[0] != a.ID || q[1] != b.ID || q[2] != d.ID {
		t.Fatalf("queue order after reload = %v", q)
	}
}

// ──────────────────────────────────────────────────
// Cancellation
// ──────────────────────────────────────────────────

func TestCancel_QueuedCascades(t *testing.T) {
	l := ledger.New(memory.New())
	ctx := context.Background()

	blocker := newJob("x", job.WithQueue("Q"))
	target := newJob("x", job.WithQueue("Q"))
	dep := newJob("x", job.WithDependsOn(target.ID), job.WithQueue("D"))
	enqueue(t, l, blocker, target, dep)
	mustClaim(t, l) // blocker

	resolved, err := l.Cancel(ctx, target.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != 2 {
		t.Fatalf("resolved %d, want 2", len(resolved))
	}
	if resolved[0].State != job.StateCanceled || resolved[1].State != job.StateFailed {
		t.Fatalf("states = %s, %s", resolved[0].State, resolved[1].State)
	}
}

func TestCancel_RunningIsCooperative(t *testing.T) {
	l := ledger.New(memory.New())
	ctx := context.Background()
	j := newJob("x")
	enqueue(t, l, j)
	mustClaim(t, l)

	var stopped atomic.Bool
	l.Track(j.ID, func() { stopped.Store(true) })

	resolved, err := l.Cancel(ctx, j.ID)
	if err != nil || len(resolved) != 0 {
		t.Fatalf("running cancel should defer resolution: %v, %v", resolved, err)
	}
	if !l.IsCanceled(j.ID) || !stopped.Load() {
		t.Fatal("flag and context cancel should be set")
	}
	out, err := l.CommitCanceled(ctx, j.ID)
	if err != nil || len(out) != 1 || out[0].State != job.StateCanceled {
		t.Fatalf("CommitCanceled = %v, %v", out, err)
	}
}

func TestTrack_AfterCancelStopsImmediately(t *testing.T) {
	l := ledger.New(memory.New())
	j := newJob("x")
	enqueue(t, l, j)
	mustClaim(t, l)

	if _, err := l.Cancel(context.Background(), j.ID); err != nil {
		t.Fatal(err)
	}
	var stopped atomic.Bool
	l.Track(j.ID, func() { stopped.Store(true) })
	if !stopped.Load() {
		t.Fatal("late Track should stop at once")
	}
}

func TestCancelQueueAndType(t *testing.T) {
	l := ledger.New(memory.New())
	ctx := context.Background()
	for range 3 {
		enqueue(t, l, newJob("send", job.WithQueue("conv:1")))
	}
	enqueue(t, l, newJob("send", job.WithQueue("conv:2")))
	enqueue(t, l, newJob("upload"))

	resolved, err := l.CancelQueue(ctx, "conv:1")
	if err != nil || len(resolved) != 3 {
		t.Fatalf("CancelQueue resolved %d, %v", len(resolved), err)
	}
	resolved, err = l.CancelType(ctx, "send")
	if err != nil || len(resolved) != 1 {
		t.Fatalf("CancelType resolved %d, %v", len(resolved), err)
	}
	if left := l.FindByType("upload"); len(left) != 1 || l.Len() != 1 {
		t.Fatalf("unexpected remaining records: %d", l.Len())
	}
}

// ──────────────────────────────────────────────────
// Queries and notifications
// ──────────────────────────────────────────────────

func TestQueryAndStats(t *testing.T) {
	l := ledger.New(memory.New())
	a := newJob("x", job.WithQueue("Q"), job.WithPriority(3))
	b := newJob("x", job.WithQueue("Q"))
	m := newJob("y", job.WithMemoryOnly())
	enqueue(t, l, a, b, m)
	mustClaim(t, l) // a (priority 3)

	ids := l.Query(func(j *job.Job) bool { return j.TypeTag == "x" })
	if len(ids) != 2 || ids[0] != a.ID || ids[1] != b.ID {
		t.Fatalf("Query = %v", ids)
	}

	st := l.Stats()
	if st.Total != 3 || st.Running != 1 || st.MemoryOnly != 1 || st.Queues != 1 {
		t.Fatalf("Stats = %+v", st)
	}
	if st.Eligible != 2 {
		t.Fatalf("Eligible = %d, want 2 (b is queue head after a, m is loose)", st.Eligible)
	}
}

func TestOnChangeFires(t *testing.T) {
	l := ledger.New(memory.New())
	var n atomic.Int32
	l.OnChange(func() { n.Add(1) })

	j := newJob("x")
	enqueue(t, l, j)
	mustClaim(t, l)
	if err := l.CommitSuccess(context.Background(), j.ID); err != nil {
		t.Fatal(err)
	}
	if n.Load() < 2 {
		t.Fatalf("OnChange fired %d times", n.Load())
	}
}

func TestEnqueue_Duplicate(t *testing.T) {
	l := ledger.New(memory.New())
	j := newJob("x")
	enqueue(t, l, j)
	if err := l.Enqueue(context.Background(), j); !errors.Is(err, backlog.ErrJobAlreadyExists) {
		t.Fatalf("expected ErrJobAlreadyExists, got %v", err)
	}
}

func TestEnqueue_RejectsCycleInBatch(t *testing.T) {
	tests := []struct {
		name  string
		batch func() []*job.Job
	}{
		{"pair", func() []*job.Job {
			a, b := newJob("x"), newJob("x")
			a.DependsOn = []id.JobID{b.ID}
			b.DependsOn = []id.JobID{a.ID}
			return []*job.Job{a, b}
		}},
		{"triangle", func() []*job.Job {
			a, b, c := newJob("x"), newJob("x"), newJob("x")
			a.DependsOn = []id.JobID{c.ID}
			b.DependsOn = []id.JobID{a.ID}
			c.DependsOn = []id.JobID{b.ID}
			return []*job.Job{a, b, c}
		}},
		{"self", func() []*job.Job {
			a := newJob("x")
			a.DependsOn = []id.JobID{a.ID}
			return []*job.Job{a}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memory.New()
			l := ledger.New(s)
			if err := l.Enqueue(context.Background(), tt.batch()...); !errors.Is(err, backlog.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if l.Len() != 0 || persisted(t, s) != 0 {
				t.Fatal("cyclic batch became visible")
			}
		})
	}

	// A diamond is not a cycle.
	l := ledger.New(memory.New())
	root := newJob("x")
	left, right := newJob("x", job.WithDependsOn(root.ID)), newJob("x", job.WithDependsOn(root.ID))
	sink := newJob("x", job.WithDependsOn(left.ID, right.ID))
	enqueue(t, l, sink, left, right, root)
}

func TestEnqueue_StoreFailureLeavesNothing(t *testing.T) {
	s := memory.New()
	l := ledger.New(s)
	boom := errors.New("io")
	s.FailNextWrite(boom)

	a, b := newJob("x"), newJob("x", job.WithDependsOn())
	if err := l.Enqueue(context.Background(), a, b); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if l.Len() != 0 {
		t.Fatal("failed batch must not become visible")
	}
}
