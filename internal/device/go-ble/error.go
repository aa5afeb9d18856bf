package goble

import (
	"fmt"
	"strings"

	"github.com/srg/nearby/internal/device"
)

// darwinPoweredOff is the exact CoreBluetooth state error the darwin backend returns
const darwinPoweredOff = "central manager has invalid state: have=4 want=5: is Bluetooth turned on?"

// errorPatterns map lower-cased message fragments from the HCI and CoreBluetooth
// backends to device sentinels. First match wins.
var errorPatterns = []struct {
	fragment string
	sentinel error
}{
	{"bluetooth is turned off", device.ErrBluetoothOff},
	{"powered off", device.ErrBluetoothOff},
	{"rfkill", device.ErrBluetoothOff},
	{"not supported", device.ErrUnsupported},
	{"unsupported", device.ErrUnsupported},
}

// NormalizeError wraps go-ble errors with the matching device sentinel so callers
// can use errors.Is. Unknown errors are returned unchanged.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	if msg == darwinPoweredOff {
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	}
	lower := strings.ToLower(msg)
	for _, p := range errorPatterns {
		if strings.Contains(lower, p.fragment) {
			return fmt.Errorf("%w: %v", p.sentinel, err)
		}
	}
	return err
}
