package scanner

import (
	"fmt"

	"github.com/srg/nearby/internal/device"
)

// StartErrorKind classifies why Start refused to begin scanning
type StartErrorKind string

const (
	RadioDisabled        StartErrorKind = "radio_disabled"
	AlreadyActive        StartErrorKind = "already_active"
	DriverUnavailable    StartErrorKind = "driver_unavailable"
	DriverStartException StartErrorKind = "driver_start_failed"
)

// StartError is returned by Session.Start. The session is never Scanning when
// one is returned: it is Idle, or Failed when the driver reported a failure
// during StartScan.
type StartError struct {
	Kind StartErrorKind
	Err  error
}

// Error implements the error interface
func (e *StartError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes the driver error, if any
func (e *StartError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare StartError values by Kind
func (e *StartError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*StartError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for start failures
var (
	ErrRadioDisabled     = &StartError{Kind: RadioDisabled}
	ErrAlreadyActive     = &StartError{Kind: AlreadyActive}
	ErrDriverUnavailable = &StartError{Kind: DriverUnavailable}
	ErrDriverStart       = &StartError{Kind: DriverStartException}
)

// DriverFailure is an asynchronous failure reported by the driver after a successful start
type DriverFailure struct {
	Code device.ScanFailureCode
}

// Error implements the error interface
func (e *DriverFailure) Error() string {
	return fmt.Sprintf("scan failed: %s", e.Code)
}
