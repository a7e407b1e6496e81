//go:build !linux && !darwin

package goble

import ble "github.com/go-ble/ble"

func newPlatformDevice() (ble.Device, error) {
	return nil, ErrUnsupportedPlatform
}
