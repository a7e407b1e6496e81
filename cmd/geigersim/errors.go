package main

import (
	"errors"
	"fmt"

	"github.com/srg/geigersim/internal/peripheral"
	"github.com/srg/geigersim/internal/transport/goble"
)

// Command-level errors
var (
	// ErrNotAdvertising means the peripheral never reached the advertising
	// state within the startup window.
	ErrNotAdvertising = errors.New("peripheral did not start advertising")
)

// FormatUserError turns known failures into a hint the user can act on.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, goble.ErrUnauthorized):
		return fmt.Sprintf("%v (on Linux run with CAP_NET_ADMIN or as root; on macOS allow Bluetooth access for the terminal)", err)
	case errors.Is(err, goble.ErrNoAdapter):
		return "no Bluetooth adapter found"
	case errors.Is(err, goble.ErrUnsupportedPlatform):
		return fmt.Sprintf("%v; use 'geigersim simulate' for the in-memory radio", err)
	case errors.Is(err, peripheral.ErrClosed):
		return "peripheral already shut down"
	default:
		return err.Error()
	}
}
