package job

import (
	"context"
	"encoding/json"
	"fmt"
)

// Definition is a typed job definition with a handler function.
// T is the payload type (must be JSON-serializable). A Definition is its
// own Factory.
type Definition[T any] struct {
	// Name is the type tag.
	Name string

	// Handler performs one attempt. Its error is mapped with Classify.
	Handler func(ctx context.Context, exec *Execution, payload T) error

	// Failed, if set, is the one-time failure callback.
	Failed func(ctx context.Context, j *Job, payload T, cause error)

	// Opts are applied before the options given at submission.
	Opts []Option
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, exec *Execution, payload T) error, opts ...Option) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Handler: handler,
		Opts:    opts,
	}
}

// OnFailure sets the failure callback and returns d.
func (d *Definition[T]) OnFailure(fn func(ctx context.Context, j *Job, payload T, cause error)) *Definition[T] {
	d.Failed = fn
	return d
}

// New wraps payload in a Body ready to be enqueued.
func (d *Definition[T]) New(payload T) Body {
	return &typedBody[T]{def: d, payload: payload}
}

// Decode implements Factory.
func (d *Definition[T]) Decode(payload []byte) (Body, error) {
	var t T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, fmt.Errorf("unmarshal payload for job %q: %w", d.Name, err)
		}
	}
	return d.New(t), nil
}

type typedBody[T any] struct {
	def     *Definition[T]
	payload T
}

func (b *typedBody[T]) TypeTag() string { return b.def.Name }

func (b *typedBody[T]) Encode() ([]byte, error) { return json.Marshal(b.payload) }

func (b *typedBody[T]) Run(ctx context.Context, exec *Execution) Result {
	return Classify(b.def.Handler(ctx, exec, b.payload))
}

func (b *typedBody[T]) OnFailure(ctx context.Context, j *Job, cause error) {
	if b.def.Failed != nil {
		b.def.Failed(ctx, j, b.payload, cause)
	}
}

func (b *typedBody[T]) DefaultOptions() []Option { return b.def.Opts }
