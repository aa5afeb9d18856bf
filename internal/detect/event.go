package detect

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/srg/nearby/internal/device"
)

// Event is one detected device. It is created once per matching sample and never mutated.
type Event struct {
	Timestamp        int64   `json:"timestamp"` // ms since epoch
	Address          string  `json:"deviceAddress"`
	Name             *string `json:"deviceName"`
	RSSI             int     `json:"rssi"`
	CompanyID        *string `json:"companyId"`
	CompanyName      string  `json:"companyName"`
	ManufacturerData *string `json:"manufacturerData"`
	Reason           string  `json:"detectionReason"`
}

// NewEvent builds an event from a matched sample
func NewEvent(at time.Time, s device.Sample, res Result) Event {
	ev := Event{
		Timestamp:   at.UnixMilli(),
		Address:     s.Address,
		RSSI:        s.RSSI,
		CompanyName: res.Vendor,
		Reason:      res.Reason(),
	}
	if s.HasName() {
		name := s.Name
		ev.Name = &name
	}
	if s.Manufacturer != nil {
		id := device.FormatCompanyID(s.Manufacturer.CompanyID)
		data := s.Manufacturer.Hex()
		ev.CompanyID = &id
		ev.ManufacturerData = &data
	}
	return ev
}

// Time returns the capture time
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// DisplayName returns the device name or "Unknown"
func (e Event) DisplayName() string {
	if e.Name == nil || *e.Name == "" {
		return device.UnknownCompany
	}
	return *e.Name
}

// LogLine renders "[15:04:05] name (-60 dBm) - reason" in local time
func (e Event) LogLine() string {
	return fmt.Sprintf("[%s] %s (%d dBm) - %s", e.Time().Format(time.TimeOnly), e.DisplayName(), e.RSSI, e.Reason)
}

// MarshalJSON adds a human-readable timestamp next to the epoch value
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	return json.Marshal(struct {
		plain
		Formatted string `json:"timestampFormatted"`
	}{plain(e), e.Time().Format(time.DateTime)})
}
