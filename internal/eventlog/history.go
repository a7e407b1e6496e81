package eventlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// MaxHistory guards against accidental misconfiguration.
const MaxHistory = 1 << 16

// History is a NotificationSink that keeps the most recent events.
type History struct {
	mu      sync.Mutex
	buffer  mpmc.RichOverlappedRingBuffer[Event]
	limit   int
	count   int
	dropped int64
	now     func() time.Time
}

// NewHistory keeps up to limit events.
func NewHistory(limit int) (*History, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("history size must be > 0")
	}
	if limit > MaxHistory {
		return nil, fmt.Errorf("history size %d exceeds maximum %d", limit, MaxHistory)
	}
	return &History{
		// One spare slot so the ring itself never overwrites before we evict.
		buffer: mpmc.NewOverlappedRingBuffer[Event](uint32(limit + 1)),
		limit:  limit,
		now:    time.Now,
	}, nil
}

func (h *History) Notify(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.append(Event{Time: h.now(), Message: message})
}

func (h *History) append(ev Event) {
	if h.count == h.limit {
		if _, err := h.buffer.Dequeue(); err == nil {
			h.count--
			h.dropped++
		}
	}
	overwrites, err := h.buffer.EnqueueM(ev)
	if err != nil {
		return
	}
	h.count += 1 - int(overwrites)
	h.dropped += int64(overwrites)
}

// Recent returns the retained events, oldest first.
func (h *History) Recent() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.count)
	for !h.buffer.IsEmpty() {
		ev, err := h.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, ev)
	}
	h.count = 0
	for _, ev := range out {
		h.append(ev)
	}
	return out
}

// Len is the number of retained events.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Dropped counts events evicted to make room.
func (h *History) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
