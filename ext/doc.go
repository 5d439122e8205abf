// Package ext defines the extension system for backlog.
//
// Extensions are notified of lifecycle events and can react to them,
// recording metrics, streaming status to a UI, or forwarding fatal
// failures to a crash reporter. Each lifecycle hook is a separate
// interface so extensions opt in only to the events they care about.
//
// # Implementing an Extension
//
//	type CrashReporter struct{ client *sentry.Client }
//
//	func (c *CrashReporter) Name() string { return "crash-reporter" }
//
//	func (c *CrashReporter) OnJobFatal(ctx context.Context, j *job.Job, cause error) error {
//	    c.client.CaptureException(cause, nil, nil)
//	    return nil
//	}
//
// # Hooks
//
//   - [JobEnqueued] record was accepted
//   - [JobStarted] a worker began an attempt
//   - [JobCompleted] record resolved Success
//   - [JobRetrying] attempt asked for a retry
//   - [JobFailed] record resolved Failed (own result, expiry, or parent)
//   - [JobCanceled] record resolved Canceled
//   - [JobFatal] diagnostic channel for FatalFailure causes
//   - [JobsRecovered] persisted records were reloaded at startup
//   - [Shutdown] the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
