package testutils

import (
	"sync"

	"github.com/srg/nearby/internal/device"
)

// FakeRadio is a device.Radio whose behaviour is set directly by the test
type FakeRadio struct {
	mu         sync.Mutex
	enabled    bool
	driver     *FakeDriver
	scannerErr error
	noDriver   bool
}

// NewFakeRadio returns an enabled radio backed by a fresh FakeDriver
func NewFakeRadio() *FakeRadio {
	return &FakeRadio{enabled: true, driver: &FakeDriver{}}
}

// SetEnabled switches the radio on or off
func (r *FakeRadio) SetEnabled(enabled bool) *FakeRadio {
	r.mu.Lock()
	r.enabled = enabled
	r.mu.Unlock()
	return r
}

// WithScannerError makes Scanner fail with err
func (r *FakeRadio) WithScannerError(err error) *FakeRadio {
	r.mu.Lock()
	r.scannerErr = err
	r.mu.Unlock()
	return r
}

// WithoutDriver makes Scanner return a nil driver and no error
func (r *FakeRadio) WithoutDriver() *FakeRadio {
	r.mu.Lock()
	r.noDriver = true
	r.mu.Unlock()
	return r
}

// Driver returns the driver handed out by Scanner
func (r *FakeRadio) Driver() *FakeDriver {
	return r.driver
}

// Enabled implements device.Radio
func (r *FakeRadio) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Scanner implements device.Radio
func (r *FakeRadio) Scanner() (device.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scannerErr != nil {
		return nil, r.scannerErr
	}
	if r.noDriver {
		return nil, nil
	}
	return r.driver, nil
}

// FakeDriver records start/stop calls and lets the test push scan results
type FakeDriver struct {
	mu        sync.Mutex
	cb        device.ScanCallback
	startErr  error
	startHook func(cb device.ScanCallback)
	starts    int
	stops     int
}

// FailStart makes the next StartScan calls return err
func (d *FakeDriver) FailStart(err error) {
	d.mu.Lock()
	d.startErr = err
	d.mu.Unlock()
}

// OnStart runs hook synchronously inside StartScan
func (d *FakeDriver) OnStart(hook func(cb device.ScanCallback)) {
	d.mu.Lock()
	d.startHook = hook
	d.mu.Unlock()
}

// StartScan implements device.Driver
func (d *FakeDriver) StartScan(cb device.ScanCallback) error {
	d.mu.Lock()
	d.starts++
	if d.startErr != nil {
		err := d.startErr
		d.mu.Unlock()
		return err
	}
	d.cb = cb
	hook := d.startHook
	d.mu.Unlock()

	if hook != nil {
		hook(cb)
	}
	return nil
}

// StopScan implements device.Driver
func (d *FakeDriver) StopScan(device.ScanCallback) error {
	d.mu.Lock()
	d.stops++
	d.cb = nil
	d.mu.Unlock()
	return nil
}

// Starts returns the number of StartScan calls
func (d *FakeDriver) Starts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

// Stops returns the number of StopScan calls
func (d *FakeDriver) Stops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

// Subscribed reports whether a callback is currently registered
func (d *FakeDriver) Subscribed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cb != nil
}

// Emit delivers advertisements to the registered callback as individual results
func (d *FakeDriver) Emit(advs ...device.Advertisement) {
	cb := d.callback()
	if cb == nil {
		return
	}
	for _, adv := range advs {
		cb.OnResult(adv)
	}
}

// EmitBatch delivers advertisements as one batch
func (d *FakeDriver) EmitBatch(advs ...device.Advertisement) {
	if cb := d.callback(); cb != nil {
		cb.OnBatch(advs)
	}
}

// Fail reports an asynchronous scan failure
func (d *FakeDriver) Fail(code device.ScanFailureCode) {
	if cb := d.callback(); cb != nil {
		cb.OnFailure(code)
	}
}

func (d *FakeDriver) callback() device.ScanCallback {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cb
}
