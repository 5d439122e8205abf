package job

import (
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the variants of Result.
type Kind uint8

const (
	KindSuccess Kind = iota
	KindRetry
	KindFailure
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRetry:
		return "retry"
	case KindFailure:
		return "failure"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Result is the outcome of one attempt of a job body. Bodies return
// exactly one of Success, Retry, RetryAfter, Failure or FatalFailure.
// The zero value is Success.
type Result struct {
	kind     Kind
	delay    time.Duration
	hasDelay bool
	err      error
}

// Success resolves the record.
func Success() Result { return Result{kind: KindSuccess} }

// Retry asks for another attempt after the computed backoff.
func Retry() Result { return Result{kind: KindRetry} }

// RetryAfter asks for another attempt after exactly d, overriding backoff.
func RetryAfter(d time.Duration) Result {
	if d < 0 {
		d = 0
	}
	return Result{kind: KindRetry, delay: d, hasDelay: true}
}

// Failure resolves the record and its dependents as failed.
func Failure(err error) Result { return Result{kind: KindFailure, err: err} }

// FatalFailure is Failure plus a report of cause to the diagnostic channel.
func FatalFailure(cause error) Result { return Result{kind: KindFatal, err: cause} }

// Kind returns the variant.
func (r Result) Kind() Kind { return r.kind }

// Delay returns the explicit retry delay, if any.
func (r Result) Delay() (time.Duration, bool) { return r.delay, r.hasDelay }

// Err returns the failure cause. It may be nil.
func (r Result) Err() error { return r.err }

// IsSuccess reports whether r is Success.
func (r Result) IsSuccess() bool { return r.kind == KindSuccess }

func (r Result) String() string {
	switch {
	case r.kind == KindRetry && r.hasDelay:
		return fmt.Sprintf("retry(%s)", r.delay)
	case r.err != nil:
		return fmt.Sprintf("%s: %v", r.kind, r.err)
	default:
		return r.kind.String()
	}
}

// ──────────────────────────────────────────────────
// Error classification
// ──────────────────────────────────────────────────

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// RetryAfterError is a transient error carrying a server-provided delay,
// such as a rate-limit hint.
type RetryAfterError struct {
	After time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %s: %v", e.After, e.Err)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Fatal marks err as an invariant violation.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// RetryIn marks err as transient with an explicit delay.
func RetryIn(d time.Duration, err error) error {
	return &RetryAfterError{After: d, Err: err}
}

// Classify maps an error returned by a handler onto a Result. Unclassified
// errors are transient.
func Classify(err error) Result {
	if err == nil {
		return Success()
	}
	var (
		fe *fatalError
		pe *permanentError
		re *RetryAfterError
	)
	switch {
	case errors.As(err, &fe):
		return FatalFailure(fe.err)
	case errors.As(err, &pe):
		return Failure(pe.err)
	case errors.As(err, &re):
		r := RetryAfter(re.After)
		r.err = re.Err
		return r
	default:
		return Result{kind: KindRetry, err: err}
	}
}
