package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ble "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/device"
	"github.com/srg/nearby/internal/groutine"
)

var errScanRunning = errors.New("scan already running")

// Radio exposes a go-ble HCI/CoreBluetooth device as a device.Radio.
// The underlying device is opened lazily on first use and reused afterwards.
type Radio struct {
	logger *logrus.Logger

	mu      sync.Mutex
	dev     ble.Device
	openErr error
}

// NewRadio creates a go-ble backed radio
func NewRadio(logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{logger: logger}
}

func (r *Radio) open() (ble.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev != nil {
		return r.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		r.openErr = NormalizeError(err)
		return nil, r.openErr
	}
	r.dev = dev
	r.openErr = nil
	return dev, nil
}

// Enabled reports false only when the stack says Bluetooth is powered off.
// Other open failures surface from Scanner instead.
func (r *Radio) Enabled() bool {
	_, err := r.open()
	return !errors.Is(err, device.ErrBluetoothOff)
}

// Scanner returns a scan driver bound to the opened device
func (r *Radio) Scanner() (device.Driver, error) {
	dev, err := r.open()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	return &bleScanner{dev: dev, logger: r.logger}, nil
}

// Close releases the underlying device
func (r *Radio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev == nil {
		return nil
	}
	err := r.dev.Stop()
	r.dev = nil
	return NormalizeError(err)
}

// bleScanner runs ble.Device.Scan on a named goroutine and forwards results
type bleScanner struct {
	dev    ble.Device
	logger *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// StartScan starts a duplicate-reporting scan. Scan errors after start are
// reported through cb.OnFailure; a cancelled scan reports nothing.
func (s *bleScanner) StartScan(cb device.ScanCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errScanRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// Adapter: convert a handler expecting a device.Advertisement to the one expecting ble.Advertisement
	bleHandler := func(adv ble.Advertisement) {
		cb.OnResult(NewBLEAdvertisement(adv))
	}

	groutine.Go(ctx, "go-ble-scan", func(ctx context.Context) {
		defer s.logger.Debugf("%s: exiting", groutine.GetName(ctx))

		err := s.dev.Scan(ctx, true, bleHandler)
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		err = NormalizeError(err)
		s.logger.WithError(err).Error("BLE scan aborted")
		s.release(cancel)
		cb.OnFailure(device.FailureCodeFor(err))
	})
	return nil
}

// StopScan cancels the running scan. It does not wait for the scan goroutine,
// so it is safe to call from inside a callback.
func (s *bleScanner) StopScan(device.ScanCallback) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// release forgets a scan that ended on its own
func (s *bleScanner) release(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()
	cancel()
}
