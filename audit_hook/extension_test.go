package audithook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	ah "github.com/xraph/backlog/audit_hook"
	"github.com/xraph/backlog/ext"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockRecorder) findByAction(action string) *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, evt := range m.events {
		if evt.Action == action {
			return evt
		}
	}
	return nil
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:          id.NewJobID(),
		TypeTag:     "send_message",
		QueueKey:    "conv:1",
		Attempt:     2,
		MaxAttempts: 5,
	}
}

func emitAll(ctx context.Context, e *ah.Extension, j *job.Job) {
	_ = e.OnJobEnqueued(ctx, j)
	_ = e.OnJobStarted(ctx, j)
	_ = e.OnJobCompleted(ctx, j, 1500*time.Millisecond)
	_ = e.OnJobRetrying(ctx, j, 3, time.Now())
	_ = e.OnJobFailed(ctx, j, errors.New("server rejected message"))
	_ = e.OnJobCanceled(ctx, j)
	_ = e.OnJobFatal(ctx, j, errors.New("panic: nil map"))
	_ = e.OnJobsRecovered(ctx, 4)
}

func TestExtension_EmitsEveryAction(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	emitAll(context.Background(), e, newTestJob())

	if rec.count() != len(ah.AllActions()) {
		t.Fatalf("recorded %d events, want %d", rec.count(), len(ah.AllActions()))
	}
	for _, action := range ah.AllActions() {
		if rec.findByAction(action) == nil {
			t.Errorf("no event for %s", action)
		}
	}
}

func TestExtension_EventShape(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	j := newTestJob()
	emitAll(context.Background(), e, j)

	tests := []struct {
		action   string
		severity string
		outcome  string
		reason   string
	}{
		{ah.ActionJobEnqueued, ah.SeverityInfo, ah.OutcomeSuccess, ""},
		{ah.ActionJobCompleted, ah.SeverityInfo, ah.OutcomeSuccess, ""},
		{ah.ActionJobRetrying, ah.SeverityWarning, ah.OutcomeFailure, ""},
		{ah.ActionJobFailed, ah.SeverityCritical, ah.OutcomeFailure, "server rejected message"},
		{ah.ActionJobCanceled, ah.SeverityWarning, ah.OutcomeFailure, ""},
		{ah.ActionJobFatal, ah.SeverityCritical, ah.OutcomeFailure, "panic: nil map"},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			evt := rec.findByAction(tt.action)
			if evt == nil {
				t.Fatal("missing event")
			}
			if evt.Severity != tt.severity || evt.Outcome != tt.outcome || evt.Reason != tt.reason {
				t.Errorf("event = %+v", evt)
			}
			if evt.Resource != ah.ResourceJob || evt.ResourceID != j.ID.String() {
				t.Errorf("resource = %s/%s", evt.Resource, evt.ResourceID)
			}
			if evt.Metadata["type"] != "send_message" || evt.Metadata["queue"] != "conv:1" {
				t.Errorf("metadata = %v", evt.Metadata)
			}
		})
	}

	completed := rec.findByAction(ah.ActionJobCompleted)
	if completed.Metadata["elapsed_ms"] != int64(1500) {
		t.Errorf("elapsed_ms = %v", completed.Metadata["elapsed_ms"])
	}
	recovered := rec.findByAction(ah.ActionJobsRecovered)
	if recovered.Resource != ah.ResourceLedger || recovered.Metadata["count"] != 4 {
		t.Errorf("recovered = %+v", recovered)
	}
}

func TestExtension_WithActionsFilters(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionJobFailed, ah.ActionJobFatal))
	emitAll(context.Background(), e, newTestJob())

	if rec.count() != 2 {
		t.Fatalf("recorded %d events, want 2", rec.count())
	}
	if rec.findByAction(ah.ActionJobCompleted) != nil {
		t.Error("filtered action recorded")
	}
}

func TestExtension_RecorderErrorLoggedNotReturned(t *testing.T) {
	var buf strings.Builder
	e := ah.New(ah.RecorderFunc(func(context.Context, *ah.AuditEvent) error {
		return errors.New("disk full")
	}), ah.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	if err := e.OnJobCompleted(context.Background(), newTestJob(), 0); err != nil {
		t.Fatalf("hook returned %v", err)
	}
	if !strings.Contains(buf.String(), "disk full") {
		t.Errorf("log = %q", buf.String())
	}
}

func TestJSONRecorder_ThroughRegistry(t *testing.T) {
	var buf bytes.Buffer
	r := ext.NewRegistry(slog.Default())
	r.Register(ah.New(ah.NewJSONRecorder(&buf)))

	ctx := context.Background()
	j := newTestJob()
	r.EmitJobEnqueued(ctx, j)
	r.EmitJobFailed(ctx, j, errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", buf.String())
	}
	var evt ah.AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Action != ah.ActionJobFailed || evt.Reason != "boom" || evt.Time.IsZero() {
		t.Errorf("event = %+v", evt)
	}
}
