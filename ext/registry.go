package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/backlog/job"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

func cache[H any](list []entry[H], e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		return append(list, entry[H]{name: e.Name(), hook: h})
	}
	return list
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
// Register all extensions before the engine starts.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobEnqueued   []entry[JobEnqueued]
	jobStarted    []entry[JobStarted]
	jobCompleted  []entry[JobCompleted]
	jobRetrying   []entry[JobRetrying]
	jobFailed     []entry[JobFailed]
	jobCanceled   []entry[JobCanceled]
	jobFatal      []entry[JobFatal]
	jobsRecovered []entry[JobsRecovered]
	shutdown      []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	r.jobEnqueued = cache(r.jobEnqueued, e)
	r.jobStarted = cache(r.jobStarted, e)
	r.jobCompleted = cache(r.jobCompleted, e)
	r.jobRetrying = cache(r.jobRetrying, e)
	r.jobFailed = cache(r.jobFailed, e)
	r.jobCanceled = cache(r.jobCanceled, e)
	r.jobFatal = cache(r.jobFatal, e)
	r.jobsRecovered = cache(r.jobsRecovered, e)
	r.shutdown = cache(r.shutdown, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitJobEnqueued notifies all extensions that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobEnqueued {
		r.check("OnJobEnqueued", e.name, e.hook.OnJobEnqueued(ctx, j))
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		r.check("OnJobStarted", e.name, e.hook.OnJobStarted(ctx, j))
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		r.check("OnJobCompleted", e.name, e.hook.OnJobCompleted(ctx, j, elapsed))
	}
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextEligibleAt time.Time) {
	for _, e := range r.jobRetrying {
		r.check("OnJobRetrying", e.name, e.hook.OnJobRetrying(ctx, j, attempt, nextEligibleAt))
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, cause error) {
	for _, e := range r.jobFailed {
		r.check("OnJobFailed", e.name, e.hook.OnJobFailed(ctx, j, cause))
	}
}

// EmitJobCanceled notifies all extensions that implement JobCanceled.
func (r *Registry) EmitJobCanceled(ctx context.Context, j *job.Job) {
	for _, e := range r.jobCanceled {
		r.check("OnJobCanceled", e.name, e.hook.OnJobCanceled(ctx, j))
	}
}

// EmitJobFatal notifies all extensions that implement JobFatal.
func (r *Registry) EmitJobFatal(ctx context.Context, j *job.Job, cause error) {
	for _, e := range r.jobFatal {
		r.check("OnJobFatal", e.name, e.hook.OnJobFatal(ctx, j, cause))
	}
}

// EmitJobsRecovered notifies all extensions that implement JobsRecovered.
func (r *Registry) EmitJobsRecovered(ctx context.Context, count int) {
	for _, e := range r.jobsRecovered {
		r.check("OnJobsRecovered", e.name, e.hook.OnJobsRecovered(ctx, count))
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		r.check("OnShutdown", e.name, e.hook.OnShutdown(ctx))
	}
}

// check logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block execution.
func (r *Registry) check(hook, extName string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
