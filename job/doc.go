// Package job defines the job record, the Result sum type, the Body and
// Factory interfaces, typed definitions and the store interface.
//
// # Job Record
//
// A [Job] describes one unit of work. It carries an opaque payload that
// only the [Factory] registered for its TypeTag can interpret, and
// progresses through a state machine:
//
//	queued → eligible → running → succeeded
//	queued → eligible → running → retry_pending → eligible → ...
//	queued → eligible → running → failed
//	queued → failed          (expired, or a parent failed)
//	queued → canceled
//
// Fields of note:
//   - QueueKey: records sharing a key run one at a time in creation order
//   - Constraints: named gates that must all hold
//   - DependsOn: parents that must succeed first
//   - MaxAttempts / Attempt: retry budget (Unlimited disables it)
//   - Lifespan: maximum age regardless of attempts
//
// # Defining a Job
//
// Implement [Body] directly, or use [Definition] with a typed handler.
// The payload is JSON-encoded at enqueue time and decoded before the
// handler runs:
//
//	var SendMessage = job.NewDefinition("send_message",
//	    func(ctx context.Context, exec *job.Execution, m Message) error {
//	        return transport(exec.Env).Send(ctx, m)
//	    },
//	    job.WithMaxAttempts(job.Unlimited),
//	    job.WithLifespan(24*time.Hour),
//	)
//
// Handler errors are classified: [Permanent] fails the record, [Fatal]
// fails it and reports the cause, [RetryIn] retries after an explicit
// delay, and anything else retries after backoff.
//
// # Registry
//
// [Registry] maps type tags to factories. Register at startup:
//
//	job.RegisterDefinition(registry, SendMessage)
package job
