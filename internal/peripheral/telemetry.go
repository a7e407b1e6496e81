package peripheral

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/geigersim/internal/groutine"
)

// telemetryGenerator owns the single periodic ticker of a telemetry session.
// Start, Stop and Running are executor-only. Ticks are forwarded to the
// executor through dispatch and discarded there if their session is gone.
type telemetryGenerator struct {
	interval time.Duration
	clock    Clock
	logger   *logrus.Logger

	parent   context.Context
	dispatch func(ctx context.Context, fn func()) bool
	tick     func()

	epoch   uint64
	cancel  context.CancelFunc
	running bool
}

// Start cancels any live ticker and schedules a new one; the cadence restarts
// from zero.
func (t *telemetryGenerator) Start() {
	t.Stop()

	t.epoch++
	epoch := t.epoch
	ctx, cancel := context.WithCancel(t.parent)
	ticker := t.clock.NewTicker(t.interval)
	t.cancel = cancel
	t.running = true

	t.logger.WithField("interval", t.interval).Debug("Telemetry session started")

	groutine.Go(ctx, "telemetry-ticker", func(ctx context.Context) {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				t.dispatch(ctx, func() {
					if t.running && t.epoch == epoch {
						t.tick()
					}
				})
			}
		}
	})
}

// Stop cancels the ticker. No tick of the stopped session runs afterwards.
func (t *telemetryGenerator) Stop() {
	if !t.running {
		return
	}
	t.cancel()
	t.cancel = nil
	t.running = false
	t.logger.Debug("Telemetry session stopped")
}

func (t *telemetryGenerator) Running() bool {
	return t.running
}

// emitReading is the telemetry tick. Runs on the executor.
func (p *Peripheral) emitReading() {
	if p.catalog == nil {
		return
	}
	char := p.catalog.Radiation.UUID
	targets := p.subs.Subscribers(char)
	if len(targets) == 0 {
		return
	}

	reading := p.readings.Radiation()
	payload := EncodeReading(reading)
	if !p.transport.UpdateValue(char, payload, targets) {
		p.logger.WithFields(logrus.Fields{
			"reading":     reading,
			"subscribers": len(targets),
		}).Warn("Could not send value, notification queue full")
		return
	}

	p.catalog.Radiation.Value = payload
	p.logger.WithField("reading", reading).Trace("Reading sent")
}
