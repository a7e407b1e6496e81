package eventlog

import (
	"sync"
	"time"
)

// Stream is a NotificationSink that never blocks the caller. Events are
// buffered in a RingChannel; when the consumer lags, the oldest are dropped.
type Stream struct {
	mu     sync.RWMutex
	ring   *RingChannel[Event]
	closed bool
	now    func() time.Time
}

func NewStream(capacity int) *Stream {
	return &Stream{
		ring: NewRingChannel[Event](capacity),
		now:  time.Now,
	}
}

// Notify is a no-op after Close.
func (s *Stream) Notify(message string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.ring.Send(Event{Time: s.now(), Message: message})
}

// Events is closed by Close after the buffered events are delivered.
func (s *Stream) Events() <-chan Event {
	return s.ring.C()
}

func (s *Stream) Metrics() Metrics {
	return s.ring.Metrics()
}

func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.ring.Close()
}
