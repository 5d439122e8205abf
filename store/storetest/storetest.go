// Package storetest is a conformance suite run by every store backend.
package storetest

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/store"
)

// Factory returns a fresh, migrated, empty store. Cleanup is the factory's
// responsibility (t.Cleanup).
type Factory func(t *testing.T) store.Store

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// NewJob builds a persisted-shape record.
func NewJob(queueKey string, offset time.Duration, seq int64) *job.Job {
	j := job.New("sync", []byte(`{"n":1}`), job.Apply(
		job.WithQueue(queueKey),
		job.WithConstraints("network", "registered"),
		job.WithPriority(int(seq)),
		job.WithLifespan(time.Hour),
		job.WithMaxConcurrentForType(2),
	))
	j.CreatedAt = base.Add(offset)
	j.Seq = seq
	return j
}

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("InsertLoadRoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("LoadOrdering", func(t *testing.T) { testOrdering(t, newStore(t)) })
	t.Run("InsertAtomicOnDuplicate", func(t *testing.T) { testAtomicInsert(t, newStore(t)) })
	t.Run("Edges", func(t *testing.T) { testEdges(t, newStore(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("DeleteUnknownIgnored", func(t *testing.T) { testDeleteUnknown(t, newStore(t)) })
	t.Run("Lifecycle", func(t *testing.T) { testLifecycle(t, newStore(t)) })
}

func mustLoad(t *testing.T, s store.Store) []*job.Job {
	t.Helper()
	jobs, err := s.LoadJobs(context.Background())
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	return jobs
}

func testRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob("conv:1", 0, 1)
	j.Timeout = 30 * time.Second
	j.MaxAttempts = job.Unlimited

	if err := s.InsertJobs(ctx, []*job.Job{j}); err != nil {
		t.Fatalf("InsertJobs: %v", err)
	}
	jobs := mustLoad(t, s)
	if len(jobs) != 1 {
		t.Fatalf("loaded %d jobs, want 1", len(jobs))
	}
	got := jobs[0]

	checks := []struct {
		name string
		ok   bool
	}{
		{"ID", got.ID == j.ID},
		{"TypeTag", got.TypeTag == j.TypeTag},
		{"QueueKey", got.QueueKey == j.QueueKey},
		{"CreatedAt", got.CreatedAt.Equal(j.CreatedAt)},
		{"Seq", got.Seq == j.Seq},
		{"MaxAttempts", got.MaxAttempts == job.Unlimited},
		{"Lifespan", got.Lifespan == time.Hour},
		{"Priority", got.Priority == j.Priority},
		{"Timeout", got.Timeout == 30*time.Second},
		{"MaxConcurrentForQueue", got.MaxConcurrentForQueue == 1},
		{"MaxConcurrentForType", got.MaxConcurrentForType == 2},
		{"Constraints", slices.Equal(got.Constraints, []string{"network", "registered"})},
		{"Payload", string(got.Payload) == `{"n":1}`},
		{"Running", !got.Running},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("%s did not round-trip: got %+v", c.name, got)
		}
	}
}

func testOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()
	a3 := NewJob("a", 2*time.Second, 5)
	a1 := NewJob("a", 0, 9)
	a2 := NewJob("a", 0, 10)
	b1 := NewJob("b", -time.Hour, 1)
	loose := NewJob("", time.Minute, 2)

	if err := s.InsertJobs(ctx, []*job.Job{a3, b1, a2, loose, a1}); err != nil {
		t.Fatal(err)
	}
	want := []id.JobID{loose.ID, a1.ID, a2.ID, a3.ID, b1.ID}
	jobs := mustLoad(t, s)
	if len(jobs) != len(want) {
		t.Fatalf("loaded %d jobs, want %d", len(jobs), len(want))
	}
	for i, j := range jobs {
		if j.ID != want[i] {
			t.Errorf("position %d: got %s (%s seq %d)", i, j.ID, j.QueueKey, j.Seq)
		}
	}
}

func testAtomicInsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	existing := NewJob("q", 0, 1)
	if err := s.InsertJobs(ctx, []*job.Job{existing}); err != nil {
		t.Fatal(err)
	}

	fresh := NewJob("q", time.Second, 2)
	if err := s.InsertJobs(ctx, []*job.Job{fresh, existing}); err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
	if jobs := mustLoad(t, s); len(jobs) != 1 {
		t.Fatalf("partial batch persisted: %d jobs", len(jobs))
	}
}

func testEdges(t *testing.T, s store.Store) {
	ctx := context.Background()
	p1 := NewJob("", 0, 1)
	p2 := NewJob("", 0, 2)
	c := NewJob("", time.Second, 3)
	c.DependsOn = []id.JobID{p1.ID, p2.ID}

	if err := s.InsertJobs(ctx, []*job.Job{p1, p2, c}); err != nil {
		t.Fatal(err)
	}
	got := findJob(mustLoad(t, s), c.ID)
	if got == nil || len(got.DependsOn) != 2 {
		t.Fatalf("edges not persisted: %+v", got)
	}

	if err := s.DeleteJobs(ctx, []id.JobID{p1.ID}); err != nil {
		t.Fatal(err)
	}
	got = findJob(mustLoad(t, s), c.ID)
	if got == nil || len(got.DependsOn) != 1 || got.DependsOn[0] != p2.ID {
		t.Fatalf("edge to deleted parent survived: %+v", got)
	}
}

func testUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob("q", 0, 1)
	if err := s.InsertJobs(ctx, []*job.Job{j}); err != nil {
		t.Fatal(err)
	}

	u := j.Clone()
	u.Running = true
	u.Attempt = 2
	u.LastAttemptAt = base.Add(time.Minute)
	u.NextEligibleAt = base.Add(2 * time.Minute)
	if err := s.UpdateJobs(ctx, []*job.Job{u}); err != nil {
		t.Fatalf("UpdateJobs: %v", err)
	}

	got := mustLoad(t, s)[0]
	if !got.Running || got.Attempt != 2 ||
		!got.LastAttemptAt.Equal(u.LastAttemptAt) || !got.NextEligibleAt.Equal(u.NextEligibleAt) {
		t.Fatalf("update not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(j.CreatedAt) || got.Seq != j.Seq {
		t.Fatalf("update touched immutable fields: %+v", got)
	}
}

func testDeleteUnknown(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob("q", 0, 1)
	if err := s.InsertJobs(ctx, []*job.Job{j}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteJobs(ctx, []id.JobID{id.NewJobID(), j.ID}); err != nil {
		t.Fatalf("DeleteJobs: %v", err)
	}
	if jobs := mustLoad(t, s); len(jobs) != 0 {
		t.Fatalf("expected empty store, got %d", len(jobs))
	}
}

func testLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate should be idempotent: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func findJob(jobs []*job.Job, jid id.JobID) *job.Job {
	for _, j := range jobs {
		if j.ID == jid {
			return j
		}
	}
	return nil
}
