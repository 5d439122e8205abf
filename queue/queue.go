package queue

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/backlog/job"
)

// TypeConfig defines per-type behaviour on top of the caps each record
// carries: a pool-wide concurrency ceiling and a token-bucket rate limit.
type TypeConfig struct {
	// TypeTag is the job type this config applies to.
	TypeTag string

	// MaxConcurrency limits how many records of this type may run at once.
	// It combines with the record's MaxConcurrentForType; the smaller
	// non-zero value wins. Zero means no type-level limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained starts per second. Zero disables
	// rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// typeState tracks runtime state for a single type tag.
type typeState struct {
	config  TypeConfig
	limiter *rate.Limiter
	active  int
}

// Manager tracks running counts per queue key and per type tag and
// enforces the concurrency caps and rate limits derived from them.
// It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	queues map[string]int
	types  map[string]*typeState
}

// NewManager creates a Manager with the given type configurations.
// Types not listed here are limited only by their records' own caps.
func NewManager(configs ...TypeConfig) *Manager {
	m := &Manager{
		queues: make(map[string]int),
		types:  make(map[string]*typeState, len(configs)),
	}
	for _, cfg := range configs {
		m.types[cfg.TypeTag] = newTypeState(cfg)
	}
	return m
}

func newTypeState(cfg TypeConfig) *typeState {
	ts := &typeState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ts
}

// QueueHasRoom reports whether another record of the queue may start given
// the queue's cap. Queue-less records always have room.
func (m *Manager) QueueHasRoom(queueKey string, maxConcurrent int) bool {
	if queueKey == "" {
		return true
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queues[queueKey] < maxConcurrent
}

// Admit reports whether j may start at now with respect to its type cap
// and rate limit. It consumes nothing. When the type is rate limited, the
// returned time is when the next token becomes available; otherwise it
// is zero.
func (m *Manager) Admit(j *job.Job, now time.Time) (bool, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.types[j.TypeTag]
	limit := j.MaxConcurrentForType
	if ts != nil && ts.config.MaxConcurrency > 0 && (limit <= 0 || ts.config.MaxConcurrency < limit) {
		limit = ts.config.MaxConcurrency
	}
	if limit > 0 && m.typeActive(j.TypeTag) >= limit {
		return false, time.Time{}
	}

	if ts != nil && ts.limiter != nil && ts.limiter.TokensAt(now) < 1 {
		r := ts.limiter.ReserveN(now, 1)
		wait := r.DelayFrom(now)
		r.CancelAt(now)
		return false, now.Add(wait)
	}
	return true, time.Time{}
}

// Acquire records that j started at now, consuming a rate token. The
// caller MUST call Release when j resolves or is put back.
func (m *Manager) Acquire(j *job.Job, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j.QueueKey != "" {
		m.queues[j.QueueKey]++
	}
	ts := m.types[j.TypeTag]
	if ts == nil {
		ts = &typeState{}
		m.types[j.TypeTag] = ts
	}
	if ts.limiter != nil {
		ts.limiter.AllowN(now, 1)
	}
	ts.active++
}

// Release decrements the running counts for j's queue and type.
func (m *Manager) Release(j *job.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j.QueueKey != "" {
		if n := m.queues[j.QueueKey]; n <= 1 {
			delete(m.queues, j.QueueKey)
		} else {
			m.queues[j.QueueKey] = n - 1
		}
	}
	if ts := m.types[j.TypeTag]; ts != nil && ts.active > 0 {
		ts.active--
	}
}

// SetTypeConfig dynamically updates (or creates) a type configuration.
func (m *Manager) SetTypeConfig(cfg TypeConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := newTypeState(cfg)
	// Preserve current active count if reconfiguring.
	if existing := m.types[cfg.TypeTag]; existing != nil {
		ts.active = existing.active
	}
	m.types[cfg.TypeTag] = ts
}

// QueueActive returns the current number of running records for a queue key.
func (m *Manager) QueueActive(queueKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queues[queueKey]
}

// TypeActive returns the current number of running records for a type tag.
func (m *Manager) TypeActive(typeTag string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typeActive(typeTag)
}

func (m *Manager) typeActive(typeTag string) int {
	if ts := m.types[typeTag]; ts != nil {
		return ts.active
	}
	return 0
}
