package tracker

import (
	"sync"
	"sync/atomic"

	"github.com/xraph/backlog/id"
)

// Subscriber receives updates for one record, or for every record when
// created by [Tracker.WatchAll].
type Subscriber struct {
	id    uint64
	jobID id.JobID
	ch    chan Update

	once    sync.Once
	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
	detach  func()
}

// C returns the read-only update channel. It is closed after a terminal
// update for a single-record subscriber, or on Close.
func (s *Subscriber) C() <-chan Update { return s.ch }

// JobID returns the watched record, or the nil ID for a firehose.
func (s *Subscriber) JobID() id.JobID { return s.jobID }

// Dropped returns how many updates were discarded because the buffer was
// full.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// Close detaches the subscriber and closes its channel. Safe to call more
// than once.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		if s.detach != nil {
			s.detach()
		}
		s.shut()
	})
}

func (s *Subscriber) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// send delivers u without blocking. It returns false when the update was
// dropped.
func (s *Subscriber) send(u Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- u:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}
