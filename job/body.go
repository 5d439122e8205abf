package job

import "context"

// Body is the capability set every job implementation supplies: a type
// tag, an encoder for its payload, the work itself and a one-time failure
// callback.
type Body interface {
	// TypeTag identifies the Factory that decodes this body.
	TypeTag() string

	// Encode produces the opaque payload persisted with the record.
	Encode() ([]byte, error)

	// Run performs one attempt.
	Run(ctx context.Context, exec *Execution) Result

	// OnFailure is called exactly once when the record resolves Failed,
	// whether by its own result, by expiry, or by a failed parent.
	OnFailure(ctx context.Context, j *Job, cause error)
}

// Defaulter is implemented by bodies that carry default submission options.
// Options passed to Enqueue are applied after these.
type Defaulter interface {
	DefaultOptions() []Option
}

// Factory decodes a persisted payload back into a Body.
type Factory interface {
	Decode(payload []byte) (Body, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(payload []byte) (Body, error)

// Decode calls f.
func (f FactoryFunc) Decode(payload []byte) (Body, error) { return f(payload) }

// Execution is what a body sees of the engine during one attempt.
type Execution struct {
	// Job is a snapshot of the record as claimed.
	Job Job

	// Env is the opaque environment the application handed the engine,
	// giving bodies access to their network, storage and crypto
	// collaborators.
	Env any

	canceled func() bool
}

// NewExecution creates an Execution. canceled may be nil.
func NewExecution(j *Job, env any, canceled func() bool) *Execution {
	return &Execution{Job: *j.Clone(), Env: env, canceled: canceled}
}

// Canceled reports whether cancellation was requested for this record.
// Bodies poll it at safe points and return promptly when it is true.
func (e *Execution) Canceled() bool {
	if e == nil || e.canceled == nil {
		return false
	}
	return e.canceled()
}
