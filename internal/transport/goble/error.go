package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/geigersim/internal/peripheral"
)

var (
	ErrBluetoothOff        = errors.New("bluetooth is turned off")
	ErrUnauthorized        = errors.New("bluetooth access not authorized")
	ErrNoAdapter           = errors.New("no bluetooth adapter")
	ErrUnsupportedPlatform = errors.New("bluetooth peripheral role is not supported on this platform")
	ErrNotOpen             = errors.New("server is not open")
)

// NormalizeError maps known go-ble error strings to sentinel errors, wrapping
// the original so its text is kept.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrBluetoothOff, ErrUnauthorized, ErrNoAdapter, ErrUnsupportedPlatform} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "invalid state") && containsIgnoreCase(msg, "is Bluetooth turned on"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"), containsIgnoreCase(msg, "powered off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "operation not permitted"), containsIgnoreCase(msg, "permission denied"),
		containsIgnoreCase(msg, "unauthorized"):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case containsIgnoreCase(msg, "no such device"), containsIgnoreCase(msg, "can't init hci"):
		return fmt.Errorf("%w: %v", ErrNoAdapter, err)
	default:
		return err
	}
}

// PowerStateFor maps a device creation error to the power state reported
// to the peripheral.
func PowerStateFor(err error) peripheral.PowerState {
	switch {
	case err == nil:
		return peripheral.PoweredOn
	case errors.Is(err, ErrBluetoothOff):
		return peripheral.PoweredOff
	case errors.Is(err, ErrUnauthorized):
		return peripheral.PowerUnauthorized
	case errors.Is(err, ErrNoAdapter), errors.Is(err, ErrUnsupportedPlatform):
		return peripheral.PowerUnsupported
	default:
		return peripheral.PowerUnknown
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
