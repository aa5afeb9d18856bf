package tinygo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/device"
	"github.com/srg/nearby/internal/groutine"
	"tinygo.org/x/bluetooth"
)

// stopTimeout bounds how long StopScan waits for the scan goroutine to exit
var stopTimeout = 2 * time.Second

const stopRetryInterval = 10 * time.Millisecond

type scanner struct {
	adapter Adapter
	logger  *logrus.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	inScan  bool          // the goroutine has committed to calling adapter.Scan
	done    chan struct{} // closed when the scan goroutine exits
}

// StartScan runs the blocking adapter scan on a named goroutine
func (s *scanner) StartScan(cb device.ScanCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errScanRunning
	}
	s.running = true
	s.stopped = false
	s.inScan = false
	done := make(chan struct{})
	s.done = done

	groutine.Go(context.Background(), "tinygo-scan", func(ctx context.Context) {
		defer close(done)
		defer s.logger.Debugf("%s: exiting", groutine.GetName(ctx))

		s.mu.Lock()
		if s.stopped {
			s.running = false
			s.mu.Unlock()
			return
		}
		s.inScan = true
		s.mu.Unlock()

		err := s.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if s.isStopped() {
				_ = s.adapter.StopScan()
				return
			}
			cb.OnResult(FromScanResult(result))
		})

		s.mu.Lock()
		stopped := s.stopped
		s.running = false
		s.inScan = false
		s.mu.Unlock()

		if err != nil && !stopped {
			s.logger.WithError(err).Error("BLE scan aborted")
			cb.OnFailure(device.FailureCodeFor(err))
		}
	})
	return nil
}

func (s *scanner) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// StopScan ends the scan and waits for the scan goroutine to exit.
// The adapter rejects StopScan until its scan is actually running, so a stop
// that lands between the goroutine start and adapter.Scan is retried.
// It must not be called from inside the scan callback.
func (s *scanner) StopScan(device.ScanCallback) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	inScan, done := s.inScan, s.done
	s.mu.Unlock()

	if !inScan {
		// the goroutine sees stopped before it reaches adapter.Scan
		<-done
		return nil
	}

	deadline := time.NewTimer(stopTimeout)
	defer deadline.Stop()
	retry := time.NewTicker(stopRetryInterval)
	defer retry.Stop()

	stopErr := s.adapter.StopScan()
	for {
		if stopErr != nil {
			s.logger.WithError(stopErr).Debug("StopScan failed, retrying")
		}
		select {
		case <-done:
			return nil
		case <-deadline.C:
			if stopErr != nil {
				return fmt.Errorf("failed to stop scan: %w", stopErr)
			}
			return fmt.Errorf("scan did not stop within %s", stopTimeout)
		case <-retry.C:
			if stopErr != nil {
				stopErr = s.adapter.StopScan()
			}
		}
	}
}

// FromScanResult converts a tinygo scan result, keeping every manufacturer
// element in advertised order
func FromScanResult(result bluetooth.ScanResult) device.Advertisement {
	return newAdvertisement(result.Address.String(), result.LocalName(), result.RSSI, result.ManufacturerData())
}

func newAdvertisement(addr, name string, rssi int16, elems []bluetooth.ManufacturerDataElement) device.Advertisement {
	manuf := make([]device.ManufacturerData, 0, len(elems))
	for _, e := range elems {
		manuf = append(manuf, device.ManufacturerData{CompanyID: e.CompanyID, Payload: e.Data})
	}
	return device.NewAdvertisement(addr, name, int(rssi), manuf...)
}
