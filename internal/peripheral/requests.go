package peripheral

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// handleRead runs on the executor.
func (p *Peripheral) handleRead(req *Request) {
	log := p.logger.WithFields(logrus.Fields{
		"central":        req.Central,
		"characteristic": ShortUUID(req.Characteristic),
	})

	if p.catalog == nil || req.Characteristic != p.catalog.BatteryLevel.UUID {
		log.Debug("Read on a characteristic without a read handler")
		p.transport.Respond(req, StatusReadNotPermitted)
		return
	}

	level := p.readings.BatteryLevel()
	value := EncodeLevel(level)
	p.catalog.BatteryLevel.Value = value
	req.Value = value
	p.transport.Respond(req, StatusSuccess)

	log.WithField("level", level).Debug("Battery level served")
	p.notifyf("New battery level=%d%%", level)
}

// handleWrite runs on the executor.
func (p *Peripheral) handleWrite(req *Request) {
	log := p.logger.WithFields(logrus.Fields{
		"central":        req.Central,
		"characteristic": ShortUUID(req.Characteristic),
	})

	if p.catalog == nil || req.Characteristic != p.catalog.Command.UUID {
		log.Debug("Write on a characteristic without a write handler")
		p.transport.Respond(req, StatusWriteNotPermitted)
		return
	}

	code, err := ParseCommand(req.Value)
	switch {
	case errors.Is(err, ErrEmptyPayload):
		log.Debug("Ignoring empty command write")
		return
	case errors.Is(err, ErrUnknownCommand):
		log.WithField("status", StatusRequestNotSupported).Warn("Rejected unsupported command")
		p.transport.Respond(req, StatusRequestNotSupported)
		p.notifyf("Rejected unsupported command 0x%02x", byte(code))
		return
	}

	switch code {
	case CommandStandBy:
		p.telemetry.Stop()
		p.catalog.Command.Value = []byte{byte(code)}
		p.transport.Respond(req, StatusSuccess)
		p.notify("Received command to standby")
	case CommandOn:
		p.telemetry.Start()
		p.catalog.Command.Value = []byte{byte(code)}
		p.transport.Respond(req, StatusSuccess)
		p.notify("Received command to turn on")
	}
	log.WithField("command", code).Info("Command applied")
}
