// Package middleware provides composable middleware for job execution.
// Middleware wraps a body's attempt synchronously and can observe or
// replace its Result (recover from panics, log, trace, time out, etc.).
package middleware

import (
	"context"

	"github.com/xraph/backlog/job"
)

// Handler is the terminal function that runs one attempt of a job body.
type Handler func(ctx context.Context) job.Result

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the record being executed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting with its own Result).
type Middleware func(ctx context.Context, j *job.Job, next Handler) job.Result

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) job.Result {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) job.Result {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}
