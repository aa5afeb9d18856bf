package main

import (
	"errors"
	"fmt"

	"github.com/srg/nearby/internal/device"
	"github.com/srg/nearby/scanner"
)

// ErrNothingToExport is returned by export when neither log lines nor detections exist
var ErrNothingToExport = errors.New("nothing to export")

// FormatUserError turns internal errors into messages suitable for the terminal
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var failure *scanner.DriverFailure
	switch {
	case errors.Is(err, scanner.ErrRadioDisabled), errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable the adapter and try again"
	case errors.Is(err, device.ErrUnsupported):
		return "BLE scanning is not supported on this platform"
	case errors.Is(err, scanner.ErrAlreadyActive):
		return "a scan is already running"
	case errors.Is(err, scanner.ErrDriverUnavailable):
		return withCause("no BLE scanner available", err)
	case errors.Is(err, scanner.ErrDriverStart):
		return withCause("failed to start BLE scan", err)
	case errors.As(err, &failure):
		return fmt.Sprintf("scan aborted by the driver (code %d: %s)", int(failure.Code), failure.Code)
	default:
		return err.Error()
	}
}

// withCause appends the driver error carried by a *scanner.StartError, if any
func withCause(msg string, err error) string {
	var startErr *scanner.StartError
	if errors.As(err, &startErr) && startErr.Err != nil {
		return fmt.Sprintf("%s: %v", msg, startErr.Err)
	}
	return msg
}
