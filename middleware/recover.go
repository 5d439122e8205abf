package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/backlog/job"
)

// Recover returns middleware that recovers from panics in the handler
// chain. A panic is an invariant violation: it becomes a FatalFailure and
// is logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (res job.Result) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job body panicked",
					slog.String("type", j.TypeTag),
					slog.String("job_id", j.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				res = job.FatalFailure(fmt.Errorf("panic in job %s: %v", j.TypeTag, r))
			}
		}()
		return next(ctx)
	}
}
