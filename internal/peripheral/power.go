package peripheral

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// PowerState is the radio power state reported by the transport.
type PowerState int

const (
	PowerUnknown PowerState = iota
	PowerResetting
	PowerUnsupported
	PowerUnauthorized
	PoweredOff
	PoweredOn
)

func (s PowerState) String() string {
	switch s {
	case PowerUnknown:
		return "unknown"
	case PowerResetting:
		return "resetting"
	case PowerUnsupported:
		return "unsupported"
	case PowerUnauthorized:
		return "unauthorized"
	case PoweredOff:
		return "powered off"
	case PoweredOn:
		return "powered on"
	default:
		return fmt.Sprintf("PowerState(%d)", int(s))
	}
}

// powerAction is what the advertising controller does on entering a power state.
type powerAction int

const (
	powerIdle powerAction = iota
	powerStart
	powerStop
)

// powerTransitions maps a reported state to its action; states not listed are idle.
var powerTransitions = map[PowerState]powerAction{
	PoweredOn:      powerStart,
	PoweredOff:     powerStop,
	PowerResetting: powerStop,
}

// handlePowerState applies the transition table. Runs on the executor.
func (p *Peripheral) handlePowerState(state PowerState) {
	prev := p.power
	p.power = state

	p.logger.WithFields(logrus.Fields{
		"state":    state.String(),
		"previous": prev.String(),
	}).Info("Peripheral power state changed")

	switch powerTransitions[state] {
	case powerStart:
		p.notify("Bluetooth powered on")
		p.start()
	case powerStop:
		if state == PowerResetting {
			p.notify("Bluetooth resetting")
		} else {
			p.notify("Bluetooth powered off")
		}
		p.stop()
	default:
		p.notify(fmt.Sprintf("Bluetooth state %s: peripheral idle", state))
	}
}
