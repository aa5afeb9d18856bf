package device

import (
	"errors"
	"fmt"
	"strings"
)

// Predefined sentinel errors for radio and lookup failures
var (
	ErrBluetoothOff     = errors.New("bluetooth is turned off")
	ErrUnsupported      = errors.New("unsupported")
	ErrAliasUnavailable = errors.New("alias unavailable")
)

// ScanFailureCode identifies why a running scan was aborted by the driver.
// Values mirror the codes reported by mobile BLE stacks so that logs stay comparable.
type ScanFailureCode int

const (
	ScanFailedAlreadyStarted      ScanFailureCode = 1
	ScanFailedRegistration        ScanFailureCode = 2
	ScanFailedInternalError       ScanFailureCode = 3
	ScanFailedFeatureUnsupported  ScanFailureCode = 4
	ScanFailedOutOfHardware       ScanFailureCode = 5
	ScanFailedScanningTooFrequent ScanFailureCode = 6
)

func (c ScanFailureCode) String() string {
	switch c {
	case ScanFailedAlreadyStarted:
		return "already started"
	case ScanFailedRegistration:
		return "application registration failed"
	case ScanFailedInternalError:
		return "internal error"
	case ScanFailedFeatureUnsupported:
		return "feature unsupported"
	case ScanFailedOutOfHardware:
		return "out of hardware resources"
	case ScanFailedScanningTooFrequent:
		return "scanning too frequently"
	default:
		return fmt.Sprintf("code %d", int(c))
	}
}

// FailureCodeFor maps a driver error to the closest ScanFailureCode
func FailureCodeFor(err error) ScanFailureCode {
	switch {
	case errors.Is(err, ErrUnsupported):
		return ScanFailedFeatureUnsupported
	case errors.Is(err, ErrBluetoothOff):
		return ScanFailedRegistration
	default:
		return ScanFailedInternalError
	}
}

// ManufacturerData is one manufacturer-specific AD structure: the company identifier
// and the payload that follows it.
type ManufacturerData struct {
	CompanyID uint16
	Payload   []byte
}

// Hex returns the payload as uppercase hex without separators
func (m ManufacturerData) Hex() string {
	return fmt.Sprintf("%X", m.Payload)
}

// Advertisement is a single observation delivered by a radio driver
type Advertisement interface {
	Addr() string
	LocalName() string
	RSSI() int
	// ManufacturerData returns manufacturer AD structures in the order they were encountered.
	ManufacturerData() []ManufacturerData
}

// AliasResolver looks up a platform-level alias for a device address.
// Implementations may fail for any reason; callers treat failures as "no name".
type AliasResolver interface {
	Alias(address string) (string, error)
}

// Sample is the per-advertisement view the detection pipeline works on.
// At most one manufacturer pair is kept.
type Sample struct {
	Address      string
	Name         string // empty when no name could be resolved
	RSSI         int
	Manufacturer *ManufacturerData
}

// HasName reports whether a device name was resolved
func (s Sample) HasName() bool {
	return s.Name != ""
}

// CompanyID returns the manufacturer identifier, if any
func (s Sample) CompanyID() (uint16, bool) {
	if s.Manufacturer == nil {
		return 0, false
	}
	return s.Manufacturer.CompanyID, true
}

// PayloadLen returns the manufacturer payload length in bytes
func (s Sample) PayloadLen() int {
	if s.Manufacturer == nil {
		return 0
	}
	return len(s.Manufacturer.Payload)
}

// NewSample converts an advertisement into a Sample. The advertised local name is
// kept as advertised; the resolver is consulted only when it is blank, and any
// resolver failure (including a panic in platform glue) leaves the name empty.
func NewSample(adv Advertisement, resolver AliasResolver) Sample {
	s := Sample{
		Address: adv.Addr(),
		Name:    adv.LocalName(),
		RSSI:    adv.RSSI(),
	}
	if strings.TrimSpace(s.Name) == "" {
		s.Name = ""
		if resolver != nil {
			s.Name = resolveAlias(resolver, s.Address)
		}
	}
	if mfd := adv.ManufacturerData(); len(mfd) > 0 {
		first := mfd[0]
		s.Manufacturer = &first
	}
	return s
}

func resolveAlias(resolver AliasResolver, address string) (name string) {
	defer func() {
		if r := recover(); r != nil {
			name = ""
		}
	}()
	alias, err := resolver.Alias(address)
	if err != nil || strings.TrimSpace(alias) == "" {
		return ""
	}
	return alias
}

// advertisement is an immutable Advertisement built from plain values
type advertisement struct {
	addr  string
	name  string
	rssi  int
	manuf []ManufacturerData
}

// NewAdvertisement builds an immutable Advertisement. The manufacturer slice and
// payloads are copied so later mutation by the caller is not observed.
func NewAdvertisement(addr, name string, rssi int, manuf ...ManufacturerData) Advertisement {
	cp := make([]ManufacturerData, 0, len(manuf))
	for _, m := range manuf {
		payload := make([]byte, len(m.Payload))
		copy(payload, m.Payload)
		cp = append(cp, ManufacturerData{CompanyID: m.CompanyID, Payload: payload})
	}
	return &advertisement{addr: addr, name: name, rssi: rssi, manuf: cp}
}

func (a *advertisement) Addr() string                         { return a.addr }
func (a *advertisement) LocalName() string                    { return a.name }
func (a *advertisement) RSSI() int                            { return a.rssi }
func (a *advertisement) ManufacturerData() []ManufacturerData { return a.manuf }
