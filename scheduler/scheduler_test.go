package scheduler_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/scheduler"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func rec(queue string, priority int, age time.Duration, seq int64) *job.Job {
	return &job.Job{QueueKey: queue, Priority: priority, CreatedAt: t0.Add(-age), Seq: seq}
}

func TestPriority_Pick(t *testing.T) {
	tests := []struct {
		name       string
		candidates []*job.Job
		want       int
	}{
		{"single", []*job.Job{rec("a", 0, 0, 1)}, 0},
		{"higher priority wins", []*job.Job{rec("a", 0, time.Hour, 1), rec("b", 5, 0, 2)}, 1},
		{"older wins on tie", []*job.Job{rec("a", 1, 0, 2), rec("b", 1, time.Minute, 1)}, 1},
		{"seq breaks equal time", []*job.Job{rec("", 0, 0, 9), rec("", 0, 0, 3)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (scheduler.Priority{}).Pick(tt.candidates); got != tt.want {
				t.Errorf("Pick = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRoundRobin_RotatesLanes(t *testing.T) {
	p := scheduler.NewRoundRobin()
	hot := rec("hot", 10, 0, 1)
	cold := rec("cold", 0, 0, 2)
	candidates := []*job.Job{hot, cold}

	// First pass: no lane served yet, priority decides.
	i := p.Pick(candidates)
	if candidates[i] != hot {
		t.Fatal("first pick should follow priority")
	}
	p.Served(candidates[i])

	// hot was just served, so cold goes next despite lower priority.
	i = p.Pick(candidates)
	if candidates[i] != cold {
		t.Fatal("second pick should rotate to the other lane")
	}
	p.Served(candidates[i])

	if candidates[p.Pick(candidates)] != hot {
		t.Fatal("third pick should rotate back")
	}
}

func TestRoundRobin_Forget(t *testing.T) {
	p := scheduler.NewRoundRobin()
	a, b := rec("a", 0, time.Minute, 1), rec("b", 0, 0, 2)
	p.Served(a)
	p.Served(b)
	p.Forget("b")

	if got := p.Pick([]*job.Job{a, b}); got != 1 {
		t.Errorf("forgotten lane should be first, got %d", got)
	}
}

func TestNew(t *testing.T) {
	if _, err := scheduler.New(backlog.FairnessPriority); err != nil {
		t.Fatal(err)
	}
	if p, err := scheduler.New(backlog.FairnessRoundRobin); err != nil || p == nil {
		t.Fatalf("round robin: %v", err)
	}
	if _, err := scheduler.New("lottery"); !errors.Is(err, backlog.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
