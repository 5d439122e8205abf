package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/backlog/engine"
	"github.com/xraph/backlog/job"
)

// Env is the environment handed to built-in bodies.
type Env struct {
	Logger *slog.Logger
}

func envLogger(exec *job.Execution) *slog.Logger {
	if env, ok := exec.Env.(*Env); ok && env.Logger != nil {
		return env.Logger
	}
	return slog.Default()
}

// EchoPayload is the payload of the "echo" type.
type EchoPayload struct {
	Message string `json:"message"`

	// FailTimes makes the first FailTimes attempts ask for a retry.
	FailTimes int `json:"fail_times,omitempty"`
}

// Echo logs its message. It exercises retries when FailTimes is set.
var Echo = job.NewDefinition("echo", func(_ context.Context, exec *job.Execution, p EchoPayload) error {
	if exec.Job.Attempt < p.FailTimes {
		return fmt.Errorf("echo: planned failure %d of %d", exec.Job.Attempt+1, p.FailTimes)
	}
	envLogger(exec).Info("echo", slog.String("job_id", exec.Job.ID.String()), slog.String("message", p.Message))
	return nil
})

// SleepPayload is the payload of the "sleep" type.
type SleepPayload struct {
	Duration string `json:"duration"`
}

// Sleep waits for the given duration, returning early on cancellation.
var Sleep = job.NewDefinition("sleep", func(ctx context.Context, exec *job.Execution, p SleepPayload) error {
	d, err := time.ParseDuration(p.Duration)
	if err != nil {
		return job.Permanent(fmt.Errorf("sleep: %w", err))
	}

	deadline := time.NewTimer(d)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if exec.Canceled() {
				return job.Permanent(context.Canceled)
			}
		}
	}
})

func registerBuiltins(eng *engine.Engine) {
	engine.Register(eng, Echo)
	engine.Register(eng, Sleep)
}
