// Package middleware provides composable middleware for job execution.
//
// A [Middleware] wraps one attempt of a job body and sees its
// [job.Result]. Middleware are composed with [Chain]; the first middleware
// in the slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging]: logs type, queue, duration and outcome of each attempt
//   - [Recover]: turns panics into FatalFailure
//   - [Timeout]: cancels the attempt context after the record's Timeout
//   - [Tracing]: wraps each attempt in an OpenTelemetry span
//   - [Metrics]: records attempt duration and outcome counters
//
// # Writing Custom Middleware
//
//	func Offline(net *constraint.Flag) middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) job.Result {
//	        if !net.IsMet() {
//	            return job.Retry()
//	        }
//	        return next(ctx)
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting with a Result of its own.
package middleware
