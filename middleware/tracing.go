package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/backlog/job"
)

// tracerName is the instrumentation scope name for backlog tracing.
const tracerName = "github.com/xraph/backlog"

// Tracing returns middleware that wraps each attempt in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through.
//
// Span attributes include: backlog.job.id, backlog.job.type,
// backlog.queue, backlog.attempt and backlog.result. Failure and
// FatalFailure set the span status to codes.Error.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) job.Result {
		ctx, span := tracer.Start(ctx, "backlog.job.run",
			trace.WithAttributes(
				attribute.String("backlog.job.id", j.ID.String()),
				attribute.String("backlog.job.type", j.TypeTag),
				attribute.String("backlog.queue", j.QueueKey),
				attribute.Int("backlog.attempt", j.Attempt+1),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		res := next(ctx)
		span.SetAttributes(attribute.String("backlog.result", res.Kind().String()))

		switch res.Kind() {
		case job.KindSuccess:
			span.SetStatus(codes.Ok, "")
		case job.KindRetry:
			if d, ok := res.Delay(); ok {
				span.AddEvent("retry", trace.WithAttributes(attribute.Int64("backlog.retry_after_ms", d.Milliseconds())))
			} else {
				span.AddEvent("retry")
			}
		default:
			msg := res.Kind().String()
			if err := res.Err(); err != nil {
				span.RecordError(err)
				msg = err.Error()
			}
			span.SetStatus(codes.Error, msg)
		}
		return res
	}
}
