package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/backlog/job"
)

// meterName is the instrumentation scope name for backlog metrics.
const meterName = "github.com/xraph/backlog"

// Metrics returns middleware that records per-attempt metrics using the
// global OTel MeterProvider.
//
// Instruments:
//   - backlog.job.duration (Float64Histogram): attempt time in seconds
//   - backlog.job.attempts (Int64Counter): total attempts
//
// Both carry the attributes type and result ("success", "retry",
// "failure" or "fatal").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"backlog.job.duration",
		metric.WithDescription("Duration of job attempts in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"backlog.job.attempts",
		metric.WithDescription("Total number of job attempts"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) job.Result {
		start := time.Now()
		res := next(ctx)

		attrs := metric.WithAttributes(
			attribute.String("type", j.TypeTag),
			attribute.String("result", res.Kind().String()),
		)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		attempts.Add(ctx, 1, attrs)
		return res
	}
}
