package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/backlog/job"
)

// Logging returns middleware that logs attempt start and outcome.
// Success is logged at info, Retry at warn, Failure and FatalFailure at error.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) job.Result {
		logger.Debug("job started",
			slog.String("type", j.TypeTag),
			slog.String("job_id", j.ID.String()),
			slog.String("queue", j.QueueKey),
			slog.Int("attempt", j.Attempt+1),
		)

		start := time.Now()
		res := next(ctx)
		attrs := []any{
			slog.String("type", j.TypeTag),
			slog.String("job_id", j.ID.String()),
			slog.Duration("elapsed", time.Since(start)),
		}
		if err := res.Err(); err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		switch res.Kind() {
		case job.KindSuccess:
			logger.Info("job completed", attrs...)
		case job.KindRetry:
			if d, ok := res.Delay(); ok {
				attrs = append(attrs, slog.Duration("retry_after", d))
			}
			logger.Warn("job requested retry", attrs...)
		default:
			attrs = append(attrs, slog.String("result", res.Kind().String()))
			logger.Error("job failed", attrs...)
		}
		return res
	}
}
