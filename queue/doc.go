// Package queue enforces the concurrency caps and rate limits that decide
// whether a candidate record may start.
//
// Every record carries its own caps: MaxConcurrentForQueue bounds the
// running records sharing its queue key (1 gives strict serial execution)
// and MaxConcurrentForType bounds the running records of its type tag.
// [TypeConfig] adds operator-level limits per type tag:
//
//	queue.TypeConfig{
//	    TypeTag:        "attachment_upload",
//	    MaxConcurrency: 2,    // at most 2 uploads at once
//	    RateLimit:      5,    // at most 5 starts per second
//	    RateBurst:      10,
//	}
//
// # Manager
//
// [Manager] is consulted by the ledger while it holds its claim lock.
// It uses a token-bucket rate limiter (golang.org/x/time/rate) and
// active-count gates. Admit never consumes a token, so a candidate that
// loses the fairness pick is not charged; when a type is throttled, Admit
// reports when the next token arrives so parked workers can wake for it.
//
//	if ok, _ := m.Admit(j, now); ok {
//	    m.Acquire(j, now)
//	    defer m.Release(j)
//	}
package queue
