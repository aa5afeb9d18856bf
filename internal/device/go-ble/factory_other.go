//go:build !linux && !darwin

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/nearby/internal/device"
)

// DeviceFactory has no backend on this platform.
// This is a variable so that it can be overridden in tests.
var DeviceFactory = func() (ble.Device, error) {
	return nil, fmt.Errorf("%w: go-ble on %s", device.ErrUnsupported, runtime.GOOS)
}
