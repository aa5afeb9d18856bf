package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/nearby/internal/device"
)

// AdvertisementBuilder builds device.Advertisement values for tests.
type AdvertisementBuilder struct {
	address string
	name    string
	rssi    int
	manuf   []device.ManufacturerData
}

// NewAdvertisementBuilder starts from a named-less advertisement at -50 dBm
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		address: "AA:BB:CC:DD:EE:FF",
		rssi:    -50,
	}
}

// WithAddress sets the device address.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b
}

// WithName sets the advertised local name.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name = name
	return b
}

// WithRSSI sets the signal strength.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi = rssi
	return b
}

// WithManufacturer appends a manufacturer AD structure.
func (b *AdvertisementBuilder) WithManufacturer(companyID uint16, payload ...byte) *AdvertisementBuilder {
	b.manuf = append(b.manuf, device.ManufacturerData{CompanyID: companyID, Payload: payload})
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Panics on invalid JSON as this is intended for test data setup.
//
//	{"address": "..", "name": "..", "rssi": -60, "manufacturer": [{"companyId": 427, "payload": "AQI="}]}
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	var data struct {
		Address      *string `json:"address"`
		Name         *string `json:"name"`
		RSSI         *int    `json:"rssi"`
		Manufacturer []struct {
			CompanyID uint16 `json:"companyId"`
			Payload   []byte `json:"payload"`
		} `json:"manufacturer"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &data); err != nil {
		panic(fmt.Sprintf("FromJSON: %v", err))
	}

	if data.Address != nil {
		b.address = *data.Address
	}
	if data.Name != nil {
		b.name = *data.Name
	}
	if data.RSSI != nil {
		b.rssi = *data.RSSI
	}
	for _, m := range data.Manufacturer {
		b.WithManufacturer(m.CompanyID, m.Payload...)
	}
	return b
}

// Build returns an immutable advertisement
func (b *AdvertisementBuilder) Build() device.Advertisement {
	return device.NewAdvertisement(b.address, b.name, b.rssi, b.manuf...)
}

// CreateMockAdvertisement is a shortcut for the common name/address/rssi case
func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}

// CreateMockAdvertisementFromJSON is a shortcut for NewAdvertisementBuilder().FromJSON
func CreateMockAdvertisementFromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	return NewAdvertisementBuilder().FromJSON(jsonStrFmt, args...)
}
