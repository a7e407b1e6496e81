package peripheral

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type notification struct {
	char     uuid.UUID
	payload  []byte
	centrals []CentralID
}

type response struct {
	req    *Request
	status Status
}

// fakeTransport records every call made by the executor.
type fakeTransport struct {
	mu sync.Mutex

	handler     EventHandler
	services    []*ServiceDefinition
	advertising bool
	name        string
	advertised  []uuid.UUID

	startErr   error
	addErr     error
	latencyErr error
	queueFull  bool

	notifications []notification
	responses     []response
	latency       []CentralID
	starts        int
	stops         int
	removals      int
}

func (f *fakeTransport) SetHandler(h EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeTransport) AddService(svc *ServiceDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.services = append(f.services, svc)
	return nil
}

func (f *fakeTransport) RemoveAllServices() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services = nil
	f.removals++
	return nil
}

func (f *fakeTransport) StartAdvertising(name string, services []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.advertising = true
	f.name = name
	f.advertised = services
	return nil
}

func (f *fakeTransport) StopAdvertising() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.advertising = false
	return nil
}

func (f *fakeTransport) UpdateValue(char uuid.UUID, payload []byte, centrals []CentralID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queueFull {
		return false
	}
	f.notifications = append(f.notifications, notification{char: char, payload: payload, centrals: centrals})
	return true
}

func (f *fakeTransport) Respond(req *Request, status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response{req: req, status: status})
}

func (f *fakeTransport) SetDesiredConnectionLatency(_ Latency, central CentralID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = append(f.latency, central)
	return f.latencyErr
}

func (f *fakeTransport) notificationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notifications)
}

func (f *fakeTransport) lastNotification() notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notifications[len(f.notifications)-1]
}

func (f *fakeTransport) lastResponse() response {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responses[len(f.responses)-1]
}

func (f *fakeTransport) responseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.responses)
}

func (f *fakeTransport) serviceUUIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uuid.UUID, 0, len(f.services))
	for _, s := range f.services {
		out = append(out, s.UUID)
	}
	return out
}

// manualClock hands out tickers that only fire on Tick.
type manualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

type manualTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	stopped  bool
}

func (c *manualClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time, 1), interval: d}
	c.tickers = append(c.tickers, t)
	return t
}

// Tick fires every ticker that has not been stopped.
func (c *manualClock) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tickers {
		t.mu.Lock()
		if !t.stopped {
			select {
			case t.ch <- time.Now():
			default:
			}
		}
		t.mu.Unlock()
	}
}

func (c *manualClock) created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

type fixedReadings struct {
	radiation float32
	level     uint8
}

func (r fixedReadings) Radiation() float32  { return r.radiation }
func (r fixedReadings) BatteryLevel() uint8 { return r.level }

// recordingSink keeps every message in order.
type recordingSink struct {
	mu       sync.Mutex
	messages []string
}

func (s *recordingSink) Notify(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
}

func (s *recordingSink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func (s *recordingSink) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Notify(message string) {
	m.Called(message)
}
