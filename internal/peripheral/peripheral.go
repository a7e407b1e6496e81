package peripheral

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/srg/geigersim/internal/groutine"
)

const (
	DefaultInterval   = 400 * time.Millisecond
	DefaultDeviceName = "Geiger"
)

// Option configures a Peripheral.
type Option func(*Peripheral)

// WithLogger sets the logger; nil keeps the default.
func WithLogger(logger *logrus.Logger) Option {
	return func(p *Peripheral) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithSink sets the initial notification sink.
func WithSink(sink NotificationSink) Option {
	return func(p *Peripheral) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithClock sets the time source that drives telemetry ticks.
func WithClock(clock Clock) Option {
	return func(p *Peripheral) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithReadings sets the source of radiation and battery values.
func WithReadings(src ReadingSource) Option {
	return func(p *Peripheral) {
		if src != nil {
			p.readings = src
		}
	}
}

// WithInterval sets the telemetry cadence; non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(p *Peripheral) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithDeviceName sets the advertised local name; empty names are ignored.
func WithDeviceName(name string) Option {
	return func(p *Peripheral) {
		if name != "" {
			p.deviceName = name
		}
	}
}

// Peripheral is the radiation-sensor GATT peripheral.
//
// All state below the executor fields is touched only by the executor
// goroutine. Every public method, including the EventHandler callbacks,
// posts a closure to the executor and waits for it to finish.
type Peripheral struct {
	transport  Transport
	logger     *logrus.Logger
	clock      Clock
	readings   ReadingSource
	interval   time.Duration
	deviceName string

	ops    chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	sink        NotificationSink
	power       PowerState
	advertising bool
	catalog     *ServiceCatalog
	subs        *SubscriptionSet
	telemetry   *telemetryGenerator
}

// New creates a peripheral bound to transport and registers itself as the
// transport's event handler. Close must be called to release the executor.
func New(transport Transport, opts ...Option) *Peripheral {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peripheral{
		transport:  transport,
		logger:     logrus.New(),
		clock:      realClock{},
		readings:   RandomReadings(),
		interval:   DefaultInterval,
		deviceName: DefaultDeviceName,
		ops:        make(chan func()),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		sink:       discardSink{},
		power:      PowerUnknown,
		subs:       NewSubscriptionSet(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.telemetry = &telemetryGenerator{
		interval: p.interval,
		clock:    p.clock,
		logger:   p.logger,
		parent:   ctx,
		dispatch: p.submit,
		tick:     p.emitReading,
	}

	groutine.Go(ctx, "peripheral-executor", p.run)
	transport.SetHandler(p)
	return p
}

func (p *Peripheral) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-p.ops:
			op()
		}
	}
}

// submit runs fn on the executor and waits for it. It returns false if ctx
// or the peripheral ended before fn was accepted.
func (p *Peripheral) submit(ctx context.Context, fn func()) bool {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case p.ops <- op:
	case <-ctx.Done():
		return false
	case <-p.ctx.Done():
		return false
	}
	<-finished
	return true
}

func (p *Peripheral) exec(fn func()) error {
	if !p.submit(p.ctx, fn) {
		return ErrClosed
	}
	return nil
}

// Start begins advertising if the radio is powered on. Otherwise advertising
// starts on the next PoweredOn transition.
func (p *Peripheral) Start() error {
	return p.exec(func() {
		if p.power != PoweredOn {
			p.logger.WithField("state", p.power.String()).Info("Radio not powered on, waiting to advertise")
			return
		}
		p.start()
	})
}

// Stop tears down advertising, services, subscriptions and telemetry.
func (p *Peripheral) Stop() error {
	return p.exec(p.stop)
}

// SetSink swaps the notification sink; nil discards events.
func (p *Peripheral) SetSink(sink NotificationSink) error {
	return p.exec(func() {
		if sink == nil {
			sink = discardSink{}
		}
		p.sink = sink
	})
}

// Close stops the peripheral and ends the executor.
func (p *Peripheral) Close() error {
	if err := p.exec(p.stop); err != nil {
		return err
	}
	p.cancel()
	<-p.done
	return nil
}

// State is a point-in-time view of the peripheral.
type State struct {
	Power           PowerState
	Advertising     bool
	Published       bool
	TelemetryActive bool
	Subscribers     []CentralID
	Services        []ServiceDescription
}

// Snapshot returns the current state.
func (p *Peripheral) Snapshot() (State, error) {
	var s State
	err := p.exec(func() {
		s = State{
			Power:           p.power,
			Advertising:     p.advertising,
			Published:       p.catalog != nil,
			TelemetryActive: p.telemetry.Running(),
		}
		if p.catalog != nil {
			s.Subscribers = p.subs.Subscribers(p.catalog.Radiation.UUID)
			s.Services = p.catalog.Describe()
		}
	})
	return s, err
}

// OnPowerStateChange applies an adapter power change.
func (p *Peripheral) OnPowerStateChange(state PowerState) {
	_ = p.exec(func() { p.handlePowerState(state) })
}

// OnAdvertisingStarted records the outcome of a StartAdvertising request.
func (p *Peripheral) OnAdvertisingStarted(err error) {
	_ = p.exec(func() {
		if err != nil {
			p.advertising = false
			p.logger.WithError(err).Error("Advertising failed")
			p.notifyf("Error advertising: %s", err)
			return
		}
		if !p.advertising {
			p.logger.Debug("Ignoring advertising report after stop")
			return
		}
		p.logger.Info("Advertising started")
		p.notify("Advertising started")
	})
}

// OnSubscribe registers central for notifications on char.
func (p *Peripheral) OnSubscribe(char uuid.UUID, central CentralID) {
	_ = p.exec(func() { p.handleSubscribe(char, central) })
}

// OnUnsubscribe removes central's subscription to char.
func (p *Peripheral) OnUnsubscribe(char uuid.UUID, central CentralID) {
	_ = p.exec(func() { p.handleUnsubscribe(char, central) })
}

// OnReadRequest answers a read on the published catalog.
func (p *Peripheral) OnReadRequest(req *Request) {
	_ = p.exec(func() { p.handleRead(req) })
}

// OnWriteRequest applies a write, typically a command byte.
func (p *Peripheral) OnWriteRequest(req *Request) {
	_ = p.exec(func() { p.handleWrite(req) })
}

// start publishes a fresh catalog and requests advertising. When already
// advertising it only refreshes the published services.
func (p *Peripheral) start() {
	if p.advertising {
		p.logger.Debug("Already advertising, refreshing services")
		p.publish()
		return
	}

	if !p.publish() {
		return
	}

	if err := p.transport.StartAdvertising(p.deviceName, p.catalog.AdvertisedUUIDs()); err != nil {
		p.logger.WithError(err).Error("Failed to start advertising")
		p.notifyf("Error advertising: %s", err)
		return
	}

	p.advertising = true
	p.logger.WithField("name", p.deviceName).Info("Service started")
	p.notify("Service started")
}

// publish replaces whatever the transport holds with a new catalog.
func (p *Peripheral) publish() bool {
	if err := p.transport.RemoveAllServices(); err != nil {
		p.logger.WithError(err).Warn("Failed to remove stale services")
	}

	p.telemetry.Stop()
	p.dropSubscribers()

	catalog := NewServiceCatalog()
	for _, svc := range catalog.Services() {
		if err := p.transport.AddService(svc); err != nil {
			p.logger.WithError(err).WithField("service", svc.Name).Error("Failed to add service")
			p.notifyf("Error advertising: %s", err)
			_ = p.transport.RemoveAllServices()
			p.catalog = nil
			return false
		}
	}
	p.catalog = catalog
	return true
}

// stop is idempotent.
func (p *Peripheral) stop() {
	if !p.advertising && p.catalog == nil {
		p.telemetry.Stop()
		p.logger.Debug("Peripheral already stopped")
		return
	}

	p.telemetry.Stop()
	if p.advertising {
		if err := p.transport.StopAdvertising(); err != nil {
			p.logger.WithError(err).Warn("Failed to stop advertising")
		}
	}
	if err := p.transport.RemoveAllServices(); err != nil {
		p.logger.WithError(err).Warn("Failed to remove services")
	}
	p.subs.Clear()
	p.catalog = nil
	p.advertising = false

	p.logger.Info("Service stopped")
	p.notify("Service stopped")
}

func (p *Peripheral) notify(message string) {
	p.sink.Notify(message)
}

func (p *Peripheral) notifyf(format string, args ...any) {
	p.sink.Notify(fmt.Sprintf(format, args...))
}
