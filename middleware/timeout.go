package middleware

import (
	"context"
	"log/slog"

	"github.com/xraph/backlog/job"
)

// Timeout returns middleware that enforces a per-attempt deadline.
// If the record has a non-zero Timeout, the body's context is canceled
// when it elapses. The body's Result is interpreted normally; a body that
// honors ctx typically returns Retry.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) job.Result {
		if j.Timeout > 0 {
			logger.Debug("job timeout set",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", j.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, j.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
