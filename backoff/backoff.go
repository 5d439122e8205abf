// Package backoff computes the delay before a retried job record becomes
// eligible again. All strategies are safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry.
type Strategy interface {
	// Delay returns how long to wait after attempt n (1-indexed) asked
	// for a retry.
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay each attempt up to Max, then optionally
// randomizes a fraction of it.
//
//	base  = min(Initial * 2^(attempt-1), Max)
//	delay = base - rand[0, Jitter*base)
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	// Jitter is the fraction of the delay that is randomized, in [0, 1].
	Jitter float64
}

// NewExponential creates an exponential backoff strategy without jitter.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// NewExponentialWithJitter creates an exponential strategy that randomizes
// up to jitter (0..1) of each delay.
func NewExponentialWithJitter(initial, maxDelay time.Duration, jitter float64) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay, Jitter: min(max(jitter, 0), 1)}
}

// Delay returns the capped, jittered delay for attempt.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	if base > ceiling {
		base = ceiling
	}
	if e.Jitter > 0 {
		base -= rand.Float64() * e.Jitter * base //nolint:gosec // jitter intentionally uses non-crypto rand
	}
	return time.Duration(base)
}

// ceiling keeps uncapped delays representable as a time.Duration.
const ceiling = float64(1 << 62)

// For returns the delay to apply after attempt: explicit when the body
// supplied one, the strategy's value otherwise.
func For(s Strategy, attempt int, explicit time.Duration, hasExplicit bool) time.Duration {
	if hasExplicit {
		return explicit
	}
	if s == nil {
		return 0
	}
	return s.Delay(attempt)
}

// DefaultStrategy returns the default backoff used by the engine:
// exponential from 1s to 1h with 20% jitter.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(time.Second, time.Hour, 0.2)
}
