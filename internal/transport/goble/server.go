// Package goble implements peripheral.Transport on a real Bluetooth adapter
// through go-ble.
package goble

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	ble "github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/srg/geigersim/internal/groutine"
	"github.com/srg/geigersim/internal/peripheral"
)

const DefaultRequestTimeout = 2 * time.Second

// advertiseSettle is how long advertising must run without error before it
// is reported as started.
var advertiseSettle = 200 * time.Millisecond

// Device is the subset of ble.Device the server drives.
type Device interface {
	AddService(svc *ble.Service) error
	RemoveAllServices() error
	AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error
	Stop() error
}

// DeviceFactory creates the platform device. Tests replace it.
var DeviceFactory = func() (Device, error) {
	return newPlatformDevice()
}

var userDescriptionUUID = ble.UUID16(0x2901)

type response struct {
	status peripheral.Status
	value  []byte
}

// Server bridges go-ble GATT callbacks to a peripheral.EventHandler.
type Server struct {
	logger  *logrus.Logger
	timeout time.Duration

	mu        sync.Mutex
	dev       Device
	handler   peripheral.EventHandler
	advCancel context.CancelFunc

	notifiers *hashmap.Map[string, ble.Notifier]
	pending   *hashmap.Map[uint64, chan response]
	nextID    atomic.Uint64
}

// NewServer creates an unopened server. A non-positive timeout selects
// DefaultRequestTimeout.
func NewServer(logger *logrus.Logger, timeout time.Duration) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Server{
		logger:    logger,
		timeout:   timeout,
		notifiers: hashmap.New[string, ble.Notifier](),
		pending:   hashmap.New[uint64, chan response](),
	}
}

// Open creates the device and reports the resulting power state to the
// handler. The returned error is normalized.
func (s *Server) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dev, err := DeviceFactory()
	err = NormalizeError(err)
	state := PowerStateFor(err)
	if err == nil {
		s.mu.Lock()
		s.dev = dev
		s.mu.Unlock()
	}

	s.logger.WithField("state", state.String()).Info("Bluetooth adapter opened")
	if h := s.getHandler(); h != nil {
		h.OnPowerStateChange(state)
	}
	if err != nil {
		return fmt.Errorf("failed to open bluetooth device: %w", err)
	}
	return nil
}

// Close stops advertising and releases the device.
func (s *Server) Close() error {
	s.mu.Lock()
	dev := s.dev
	s.dev = nil
	if s.advCancel != nil {
		s.advCancel()
		s.advCancel = nil
	}
	s.mu.Unlock()

	if dev == nil {
		return nil
	}
	return NormalizeError(dev.Stop())
}

func (s *Server) SetHandler(h peripheral.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *Server) getHandler() peripheral.EventHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

func (s *Server) device() (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return nil, ErrNotOpen
	}
	return s.dev, nil
}

func (s *Server) AddService(def *peripheral.ServiceDefinition) error {
	dev, err := s.device()
	if err != nil {
		return err
	}
	svc := s.buildService(def)
	if err := dev.AddService(svc); err != nil {
		return fmt.Errorf("failed to add service %s: %w", def.Name, NormalizeError(err))
	}
	s.logger.WithField("service", def.UUID.String()).Debug("Service added")
	return nil
}

func (s *Server) RemoveAllServices() error {
	dev, err := s.device()
	if err != nil {
		return err
	}
	s.notifiers.Range(func(key string, _ ble.Notifier) bool {
		s.notifiers.Del(key)
		return true
	})
	return NormalizeError(dev.RemoveAllServices())
}

// StartAdvertising launches the advertiser. The outcome reaches the handler
// through OnAdvertisingStarted.
func (s *Server) StartAdvertising(name string, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return ErrNotOpen
	}
	if s.advCancel != nil {
		s.advCancel()
	}

	bleIDs := make([]ble.UUID, 0, len(ids))
	for _, id := range ids {
		bleIDs = append(bleIDs, toBLEUUID(id))
	}

	dev, h := s.dev, s.handler
	ctx, cancel := context.WithCancel(context.Background())
	s.advCancel = cancel
	groutine.Go(ctx, "ble-advertiser", func(ctx context.Context) {
		s.advertise(ctx, dev, h, name, bleIDs)
	})
	return nil
}

func (s *Server) advertise(ctx context.Context, dev Device, h peripheral.EventHandler, name string, ids []ble.UUID) {
	errc := make(chan error, 1)
	go func() {
		errc <- dev.AdvertiseNameAndServices(ctx, name, ids...)
	}()

	report := func(err error) {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil || h == nil {
			return
		}
		h.OnAdvertisingStarted(NormalizeError(err))
	}

	select {
	case err := <-errc:
		if err == nil {
			err = errors.New("advertising ended unexpectedly")
		}
		report(err)
		return
	case <-time.After(advertiseSettle):
		if ctx.Err() == nil && h != nil {
			h.OnAdvertisingStarted(nil)
		}
	}

	if err := <-errc; err != nil {
		report(err)
	}
}

// StopAdvertising cancels the advertiser without waiting for it, since the
// advertiser may itself be reporting to the caller.
func (s *Server) StopAdvertising() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advCancel != nil {
		s.advCancel()
		s.advCancel = nil
	}
	return nil
}

// UpdateValue notifies each subscribed central. go-ble exposes no queue
// capacity, so false means at least one notifier write failed.
func (s *Server) UpdateValue(char uuid.UUID, payload []byte, centrals []peripheral.CentralID) bool {
	ok := true
	for _, central := range centrals {
		n, found := s.notifiers.Get(notifierKey(central, char))
		if !found {
			continue
		}
		if _, err := n.Write(payload); err != nil {
			s.logger.WithError(err).WithField("central", string(central)).Debug("Notification write failed")
			ok = false
		}
	}
	return ok
}

func (s *Server) Respond(req *peripheral.Request, status peripheral.Status) {
	ch, ok := s.pending.Get(req.ID)
	if !ok {
		s.logger.WithField("request", req.ID).Warn("Response for unknown request")
		return
	}
	value := append([]byte(nil), req.Value...)
	select {
	case ch <- response{status: status, value: value}:
	default:
		s.logger.WithField("request", req.ID).Warn("Request already answered")
	}
}

// SetDesiredConnectionLatency is not exposed by go-ble.
func (s *Server) SetDesiredConnectionLatency(peripheral.Latency, peripheral.CentralID) error {
	return peripheral.ErrUnsupported
}

func (s *Server) buildService(def *peripheral.ServiceDefinition) *ble.Service {
	svc := ble.NewService(toBLEUUID(def.UUID))
	for _, cd := range def.Characteristics() {
		c := svc.NewCharacteristic(toBLEUUID(cd.UUID))
		if cd.Properties.Has(peripheral.PropRead) {
			c.HandleRead(ble.ReadHandlerFunc(s.readHandler(cd.UUID)))
		}
		if cd.Properties.Has(peripheral.PropWrite) {
			c.HandleWrite(ble.WriteHandlerFunc(s.writeHandler(cd.UUID)))
		}
		if cd.Properties.Has(peripheral.PropNotify) {
			c.HandleNotify(ble.NotifyHandlerFunc(s.notifyHandler(cd.UUID)))
		}
		if cd.Description != "" {
			c.NewDescriptor(userDescriptionUUID).SetValue([]byte(cd.Description))
		}
	}
	return svc
}

func (s *Server) readHandler(char uuid.UUID) func(ble.Request, ble.ResponseWriter) {
	return func(req ble.Request, rsp ble.ResponseWriter) {
		r := &peripheral.Request{
			Central:        centralID(req),
			Characteristic: char,
			Offset:         req.Offset(),
		}
		res, ok := s.dispatch(r, func(h peripheral.EventHandler) { h.OnReadRequest(r) })
		if !ok {
			rsp.SetStatus(ble.ErrUnlikely)
			return
		}
		rsp.SetStatus(attStatus(res.status))
		if res.status != peripheral.StatusSuccess {
			return
		}
		value := res.value
		if r.Offset > 0 {
			if r.Offset > len(value) {
				rsp.SetStatus(ble.ErrInvalidOffset)
				return
			}
			value = value[r.Offset:]
		}
		if _, err := rsp.Write(value); err != nil {
			s.logger.WithError(err).Warn("Failed to write read response")
		}
	}
}

func (s *Server) writeHandler(char uuid.UUID) func(ble.Request, ble.ResponseWriter) {
	return func(req ble.Request, rsp ble.ResponseWriter) {
		r := &peripheral.Request{
			Central:        centralID(req),
			Characteristic: char,
			Offset:         req.Offset(),
			Value:          append([]byte(nil), req.Data()...),
		}
		res, ok := s.dispatch(r, func(h peripheral.EventHandler) { h.OnWriteRequest(r) })
		if !ok {
			// Unanswered writes keep the go-ble default response.
			return
		}
		rsp.SetStatus(attStatus(res.status))
	}
}

func (s *Server) notifyHandler(char uuid.UUID) func(ble.Request, ble.Notifier) {
	return func(req ble.Request, n ble.Notifier) {
		h := s.getHandler()
		if h == nil {
			return
		}
		central := centralID(req)
		key := notifierKey(central, char)
		s.notifiers.Set(key, n)
		h.OnSubscribe(char, central)

		<-n.Context().Done()

		s.notifiers.Del(key)
		h.OnUnsubscribe(char, central)
	}
}

// dispatch hands a request to the handler and waits for its answer, bounded
// by the request timeout. ok is false when no answer arrived.
func (s *Server) dispatch(r *peripheral.Request, call func(peripheral.EventHandler)) (response, bool) {
	h := s.getHandler()
	if h == nil {
		return response{}, false
	}

	r.ID = s.nextID.Add(1)
	ch := make(chan response, 1)
	s.pending.Set(r.ID, ch)
	defer s.pending.Del(r.ID)

	handled := make(chan struct{})
	groutine.Go(context.Background(), "ble-request", func(context.Context) {
		defer close(handled)
		call(h)
	})

	select {
	case <-handled:
	case <-time.After(s.timeout):
		s.logger.WithField("request", r.ID).Warn("Request timed out")
		return response{}, false
	}

	select {
	case res := <-ch:
		return res, true
	default:
		s.logger.WithField("request", r.ID).Debug("Request left unanswered")
		return response{}, false
	}
}

func attStatus(status peripheral.Status) ble.ATTError {
	switch status {
	case peripheral.StatusSuccess:
		return ble.ErrSuccess
	case peripheral.StatusReadNotPermitted:
		return ble.ErrReadNotPerm
	case peripheral.StatusWriteNotPermitted:
		return ble.ErrWriteNotPerm
	case peripheral.StatusRequestNotSupported:
		return ble.ErrReqNotSupp
	default:
		return ble.ErrUnlikely
	}
}

// toBLEUUID uses the 16-bit form for Bluetooth SIG assigned numbers.
func toBLEUUID(id uuid.UUID) ble.UUID {
	if short := peripheral.ShortUUID(id); len(short) == 4 {
		if v, err := strconv.ParseUint(short, 16, 16); err == nil {
			return ble.UUID16(uint16(v))
		}
	}
	return ble.MustParse(id.String())
}

func centralID(req ble.Request) peripheral.CentralID {
	if req == nil || req.Conn() == nil || req.Conn().RemoteAddr() == nil {
		return "unknown"
	}
	return peripheral.CentralID(req.Conn().RemoteAddr().String())
}

func notifierKey(central peripheral.CentralID, char uuid.UUID) string {
	return string(central) + "/" + char.String()
}
