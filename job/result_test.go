package job_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/backlog/job"
)

func TestClassify(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name      string
		err       error
		kind      job.Kind
		delay     time.Duration
		hasDelay  bool
		wantCause bool
	}{
		{"nil", nil, job.KindSuccess, 0, false, false},
		{"plain", base, job.KindRetry, 0, false, true},
		{"permanent", job.Permanent(base), job.KindFailure, 0, false, true},
		{"wrapped permanent", fmt.Errorf("send: %w", job.Permanent(base)), job.KindFailure, 0, false, true},
		{"fatal", job.Fatal(base), job.KindFatal, 0, false, true},
		{"retry in", job.RetryIn(2*time.Second, base), job.KindRetry, 2 * time.Second, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := job.Classify(tt.err)
			if r.Kind() != tt.kind {
				t.Fatalf("kind = %v, want %v", r.Kind(), tt.kind)
			}
			d, ok := r.Delay()
			if ok != tt.hasDelay || d != tt.delay {
				t.Errorf("delay = %v,%v want %v,%v", d, ok, tt.delay, tt.hasDelay)
			}
			if tt.wantCause && !errors.Is(r.Err(), base) {
				t.Errorf("cause = %v, want %v", r.Err(), base)
			}
		})
	}
}

func TestResultZeroIsSuccess(t *testing.T) {
	var r job.Result
	if !r.IsSuccess() {
		t.Fatal("zero Result should be Success")
	}
}

func TestRetryAfterNegative(t *testing.T) {
	d, ok := job.RetryAfter(-time.Second).Delay()
	if !ok || d != 0 {
		t.Errorf("delay = %v,%v", d, ok)
	}
}

func TestPermanentNil(t *testing.T) {
	if job.Permanent(nil) != nil || job.Fatal(nil) != nil {
		t.Fatal("wrapping nil should stay nil")
	}
}
