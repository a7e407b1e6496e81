// Package loopback implements an in-memory radio for the peripheral core.
// Virtual centrals connect to it, subscribe, read, write and receive
// notifications without any Bluetooth hardware.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/srg/geigersim/internal/groutine"
	"github.com/srg/geigersim/internal/peripheral"
)

var (
	ErrNotAdvertising   = errors.New("peripheral is not advertising")
	ErrPoweredOff       = errors.New("radio is not powered on")
	ErrDisconnected     = errors.New("central disconnected")
	ErrUnknownCentral   = errors.New("unknown central")
	ErrNoCharacteristic = errors.New("characteristic not published")
	ErrNotNotifiable    = errors.New("characteristic does not support notifications")
	ErrNoResponse       = errors.New("request was not answered")
)

// DefaultQueueDepth is the per-central notification queue length.
const DefaultQueueDepth = 8

// Radio is a peripheral.Transport backed by memory.
//
// Handler callbacks are invoked from the goroutine of the Central or Radio
// method that caused them, or from a radio goroutine, and never while the
// radio lock is held.
type Radio struct {
	logger     *logrus.Logger
	queueDepth int

	mu          sync.Mutex
	handler     peripheral.EventHandler
	power       peripheral.PowerState
	services    []*peripheral.ServiceDefinition
	advertising bool
	name        string
	advertised  []uuid.UUID
	centrals    map[peripheral.CentralID]*Central
	pending     map[uint64]chan peripheral.Status

	requestID atomic.Uint64
}

// NewRadio creates a powered-off radio. A non-positive queueDepth uses
// DefaultQueueDepth.
func NewRadio(logger *logrus.Logger, queueDepth int) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Radio{
		logger:     logger,
		queueDepth: queueDepth,
		power:      peripheral.PoweredOff,
		centrals:   make(map[peripheral.CentralID]*Central),
		pending:    make(map[uint64]chan peripheral.Status),
	}
}

func (r *Radio) SetHandler(h peripheral.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// SetPowerState changes the radio power and reports it to the handler.
func (r *Radio) SetPowerState(state peripheral.PowerState) {
	r.mu.Lock()
	r.power = state
	if state != peripheral.PoweredOn {
		r.advertising = false
	}
	h := r.handler
	r.mu.Unlock()

	r.logger.WithField("state", state.String()).Debug("Loopback radio power changed")
	if h != nil {
		h.OnPowerStateChange(state)
	}
}

func (r *Radio) PowerState() peripheral.PowerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.power
}

func (r *Radio) AddService(svc *peripheral.ServiceDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.services {
		if s.UUID == svc.UUID {
			return fmt.Errorf("service %s already published", svc.UUID)
		}
	}
	r.services = append(r.services, svc)
	return nil
}

func (r *Radio) RemoveAllServices() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = nil
	for _, c := range r.centrals {
		c.clearSubscriptions()
	}
	return nil
}

// Services returns the published services in publication order.
func (r *Radio) Services() []*peripheral.ServiceDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*peripheral.ServiceDefinition(nil), r.services...)
}

// StartAdvertising reports completion asynchronously through
// OnAdvertisingStarted.
func (r *Radio) StartAdvertising(name string, services []uuid.UUID) error {
	r.mu.Lock()
	if r.power != peripheral.PoweredOn {
		r.mu.Unlock()
		return ErrPoweredOff
	}
	r.advertising = true
	r.name = name
	r.advertised = append([]uuid.UUID(nil), services...)
	h := r.handler
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"name":     name,
		"services": len(services),
	}).Debug("Loopback advertising")

	if h != nil {
		groutine.Go(context.Background(), "loopback-advertiser", func(context.Context) {
			h.OnAdvertisingStarted(nil)
		})
	}
	return nil
}

func (r *Radio) StopAdvertising() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advertising = false
	return nil
}

// Advertising reports the advertised name and service UUIDs.
func (r *Radio) Advertising() (name string, services []uuid.UUID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name, append([]uuid.UUID(nil), r.advertised...), r.advertising
}

// UpdateValue enqueues payload on every target central. It returns false
// without sending anything if any connected target lacks queue room.
func (r *Radio) UpdateValue(char uuid.UUID, payload []byte, centrals []peripheral.CentralID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets := make([]*Central, 0, len(centrals))
	for _, id := range centrals {
		c, ok := r.centrals[id]
		if !ok {
			continue
		}
		if !c.hasRoom(len(payload)) {
			r.logger.WithField("central", id).Debug("Loopback notification queue full")
			return false
		}
		targets = append(targets, c)
	}
	for _, c := range targets {
		c.enqueue(char, payload)
	}
	return true
}

func (r *Radio) Respond(req *peripheral.Request, status peripheral.Status) {
	r.mu.Lock()
	ch, ok := r.pending[req.ID]
	delete(r.pending, req.ID)
	r.mu.Unlock()

	if !ok {
		r.logger.WithField("request", req.ID).Warn("Response to unknown request")
		return
	}
	ch <- status
}

func (r *Radio) SetDesiredConnectionLatency(latency peripheral.Latency, central peripheral.CentralID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.centrals[central]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCentral, central)
	}
	c.latency = latency
	return nil
}

// Connect attaches a new virtual central to the advertising peripheral.
func (r *Radio) Connect() (*Central, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.advertising {
		return nil, ErrNotAdvertising
	}
	c := newCentral(r, peripheral.CentralID(uuid.NewString()), r.queueDepth)
	r.centrals[c.id] = c
	r.logger.WithField("central", c.id).Debug("Loopback central connected")
	return c, nil
}

// Centrals returns the number of connected centrals.
func (r *Radio) Centrals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.centrals)
}

// lookup finds a published characteristic. Caller holds r.mu.
func (r *Radio) lookup(char uuid.UUID) (*peripheral.CharacteristicDefinition, bool) {
	for _, svc := range r.services {
		if def, ok := svc.Characteristic(char); ok {
			return def, true
		}
	}
	return nil, false
}

// request sends a read or write to the handler and collects the status the
// handler responded with before returning.
func (r *Radio) request(c *Central, char uuid.UUID, value []byte, write bool) ([]byte, peripheral.Status, error) {
	r.mu.Lock()
	if _, ok := r.centrals[c.id]; !ok {
		r.mu.Unlock()
		return nil, 0, ErrDisconnected
	}
	def, ok := r.lookup(char)
	if !ok {
		r.mu.Unlock()
		return nil, 0, fmt.Errorf("%w: %s", ErrNoCharacteristic, peripheral.ShortUUID(char))
	}
	if write && !def.Properties.Has(peripheral.PropWrite) {
		r.mu.Unlock()
		return nil, peripheral.StatusWriteNotPermitted, nil
	}
	if !write && !def.Properties.Has(peripheral.PropRead) {
		r.mu.Unlock()
		return nil, peripheral.StatusReadNotPermitted, nil
	}

	req := &peripheral.Request{
		ID:             r.requestID.Add(1),
		Central:        c.id,
		Characteristic: char,
		Value:          value,
	}
	done := make(chan peripheral.Status, 1)
	r.pending[req.ID] = done
	h := r.handler
	r.mu.Unlock()

	if h != nil {
		if write {
			h.OnWriteRequest(req)
		} else {
			h.OnReadRequest(req)
		}
	}

	select {
	case status := <-done:
		return req.Value, status, nil
	default:
		r.mu.Lock()
		delete(r.pending, req.ID)
		r.mu.Unlock()
		return nil, 0, ErrNoResponse
	}
}

func (r *Radio) subscribe(c *Central, char uuid.UUID) error {
	r.mu.Lock()
	if _, ok := r.centrals[c.id]; !ok {
		r.mu.Unlock()
		return ErrDisconnected
	}
	def, ok := r.lookup(char)
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoCharacteristic, peripheral.ShortUUID(char))
	}
	if !def.Properties.Has(peripheral.PropNotify) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotNotifiable, peripheral.ShortUUID(char))
	}
	c.subscribed[char] = struct{}{}
	h := r.handler
	r.mu.Unlock()

	if h != nil {
		h.OnSubscribe(char, c.id)
	}
	return nil
}

func (r *Radio) unsubscribe(c *Central, char uuid.UUID) error {
	r.mu.Lock()
	if _, ok := r.centrals[c.id]; !ok {
		r.mu.Unlock()
		return ErrDisconnected
	}
	if _, ok := c.subscribed[char]; !ok {
		r.mu.Unlock()
		return nil
	}
	delete(c.subscribed, char)
	h := r.handler
	r.mu.Unlock()

	if h != nil {
		h.OnUnsubscribe(char, c.id)
	}
	return nil
}

func (r *Radio) disconnect(c *Central) {
	r.mu.Lock()
	if _, ok := r.centrals[c.id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.centrals, c.id)
	chars := make([]uuid.UUID, 0, len(c.subscribed))
	for char := range c.subscribed {
		chars = append(chars, char)
	}
	c.clearSubscriptions()
	c.close()
	h := r.handler
	r.mu.Unlock()

	r.logger.WithField("central", c.id).Debug("Loopback central disconnected")
	if h != nil {
		for _, char := range chars {
			h.OnUnsubscribe(char, c.id)
		}
	}
}
