// Package tinygo adapts tinygo.org/x/bluetooth (BlueZ over D-Bus, CoreBluetooth,
// WinRT) to the device driver interfaces.
package tinygo

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/device"
	"tinygo.org/x/bluetooth"
)

var errScanRunning = errors.New("scan already running")

// Adapter is the subset of *bluetooth.Adapter used for scanning.
// This is an interface so that it can be replaced in tests.
type Adapter interface {
	Enable() error
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
}

// Radio exposes a tinygo bluetooth adapter as a device.Radio
type Radio struct {
	adapter Adapter
	logger  *logrus.Logger

	once      sync.Once
	enableErr error
}

// NewRadio wraps the given adapter; nil selects bluetooth.DefaultAdapter
func NewRadio(adapter Adapter, logger *logrus.Logger) *Radio {
	if adapter == nil {
		adapter = bluetooth.DefaultAdapter
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{adapter: adapter, logger: logger}
}

func (r *Radio) enable() error {
	r.once.Do(func() {
		if err := r.adapter.Enable(); err != nil {
			r.enableErr = fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
		}
	})
	return r.enableErr
}

// Enabled enables the adapter on first call and reports whether that worked
func (r *Radio) Enabled() bool {
	err := r.enable()
	if err != nil {
		r.logger.WithError(err).Debug("BLE adapter could not be enabled")
	}
	return err == nil
}

// Scanner returns a scan driver for the adapter
func (r *Radio) Scanner() (device.Driver, error) {
	if err := r.enable(); err != nil {
		return nil, err
	}
	return &scanner{adapter: r.adapter, logger: r.logger}, nil
}
