package loopback

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
	"github.com/smallnest/ringbuffer"

	"github.com/srg/geigersim/internal/peripheral"
)

// frameHeader is the length prefix of each queued notification.
const frameHeader = 2

// Notification is a value pushed by the peripheral.
type Notification struct {
	Characteristic uuid.UUID
	Value          []byte
}

// Central is a virtual remote device connected to a Radio.
//
// Fields other than the queue are guarded by the radio lock.
type Central struct {
	id    peripheral.CentralID
	radio *Radio

	subscribed map[uuid.UUID]struct{}
	latency    peripheral.Latency

	qmu   sync.Mutex
	queue *ringbuffer.RingBuffer
	chars []uuid.UUID
	ready chan struct{}
	gone  chan struct{}
	once  sync.Once
}

func newCentral(r *Radio, id peripheral.CentralID, depth int) *Central {
	return &Central{
		id:         id,
		radio:      r,
		subscribed: make(map[uuid.UUID]struct{}),
		latency:    peripheral.LatencyMedium,
		queue:      ringbuffer.New(depth * (frameHeader + peripheral.ReadingSize)),
		ready:      make(chan struct{}, 1),
		gone:       make(chan struct{}),
	}
}

func (c *Central) ID() peripheral.CentralID { return c.id }

// Latency is the connection latency last requested by the peripheral.
func (c *Central) Latency() peripheral.Latency {
	c.radio.mu.Lock()
	defer c.radio.mu.Unlock()
	return c.latency
}

func (c *Central) Subscribe(char uuid.UUID) error {
	return c.radio.subscribe(c, char)
}

// Unsubscribe is a no-op for characteristics the central is not subscribed to.
func (c *Central) Unsubscribe(char uuid.UUID) error {
	return c.radio.unsubscribe(c, char)
}

// Read returns the response value and protocol status. ErrNoResponse means
// the peripheral ignored the request.
func (c *Central) Read(char uuid.UUID) ([]byte, peripheral.Status, error) {
	return c.radio.request(c, char, nil, false)
}

func (c *Central) Write(char uuid.UUID, payload []byte) (peripheral.Status, error) {
	_, status, err := c.radio.request(c, char, payload, true)
	return status, err
}

// Next blocks until a notification arrives, ctx ends or the central disconnects.
func (c *Central) Next(ctx context.Context) (Notification, error) {
	for {
		if n, ok := c.dequeue(); ok {
			return n, nil
		}
		select {
		case <-ctx.Done():
			return Notification{}, ctx.Err()
		case <-c.gone:
			if n, ok := c.dequeue(); ok {
				return n, nil
			}
			return Notification{}, ErrDisconnected
		case <-c.ready:
		}
	}
}

// Pending is the number of queued notifications.
func (c *Central) Pending() int {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	return len(c.chars)
}

func (c *Central) Disconnect() {
	c.radio.disconnect(c)
}

func (c *Central) hasRoom(size int) bool {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	return c.queue.Free() >= frameHeader+size
}

// enqueue writes one frame; hasRoom must have been checked under the radio lock.
func (c *Central) enqueue(char uuid.UUID, payload []byte) {
	frame := make([]byte, frameHeader+len(payload))
	binary.LittleEndian.PutUint16(frame, uint16(len(payload)))
	copy(frame[frameHeader:], payload)

	c.qmu.Lock()
	if _, err := c.queue.Write(frame); err != nil {
		c.qmu.Unlock()
		return
	}
	c.chars = append(c.chars, char)
	c.qmu.Unlock()

	select {
	case c.ready <- struct{}{}:
	default:
	}
}

func (c *Central) dequeue() (Notification, bool) {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if len(c.chars) == 0 {
		return Notification{}, false
	}

	var header [frameHeader]byte
	if _, err := c.queue.Read(header[:]); err != nil {
		return Notification{}, false
	}
	value := make([]byte, binary.LittleEndian.Uint16(header[:]))
	if _, err := c.queue.Read(value); err != nil {
		return Notification{}, false
	}
	char := c.chars[0]
	c.chars = c.chars[1:]
	return Notification{Characteristic: char, Value: value}, true
}

// clearSubscriptions runs under the radio lock.
func (c *Central) clearSubscriptions() {
	clear(c.subscribed)
}

func (c *Central) close() {
	c.once.Do(func() { close(c.gone) })
}
