package device

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// UnknownCompany is the vendor name used when no manufacturer identifier was advertised.
const UnknownCompany = "Unknown"

// Bluetooth SIG assigned company identifiers relevant to smart-glasses detection.
const (
	CompanyMeta             uint16 = 0x01AB // Meta Platforms, Inc. (formerly Facebook)
	CompanyMetaTechnologies uint16 = 0x058E
	CompanyEssilorLuxottica uint16 = 0x0D53
	CompanySnap             uint16 = 0x03C2
)

// Company is a known vendor entry
type Company struct {
	ID   uint16 `json:"id"`
	Name string `json:"name"`
}

// knownCompanies maps company IDs to display names
var knownCompanies = map[uint16]string{
	CompanyMeta:             "Meta Platforms, Inc.",
	CompanyMetaTechnologies: "Meta Platforms, Inc.",
	CompanyEssilorLuxottica: "EssilorLuxottica",
	CompanySnap:             "Snap Inc.",
}

// FormatCompanyID renders an identifier as 0x followed by 4 uppercase hex digits
func FormatCompanyID(id uint16) string {
	return fmt.Sprintf("0x%04X", id)
}

// LookupCompany returns the display name for a known company ID
func LookupCompany(id uint16) (string, bool) {
	name, ok := knownCompanies[id]
	return name, ok
}

// CompanyName resolves a company ID, falling back to "Unknown (0xXXXX)"
func CompanyName(id uint16) string {
	if name, ok := knownCompanies[id]; ok {
		return name
	}
	return fmt.Sprintf("%s (%s)", UnknownCompany, FormatCompanyID(id))
}

// KnownCompanies lists the registry in ascending ID order
func KnownCompanies() []Company {
	out := make([]Company, 0, len(knownCompanies))
	for id, name := range knownCompanies {
		out = append(out, Company{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ParseManufacturerData splits a raw manufacturer-specific AD payload into the
// company ID (first 2 bytes, little-endian) and the remaining data.
// Payloads shorter than 2 bytes carry no company ID and are reported as absent.
func ParseManufacturerData(raw []byte) (ManufacturerData, bool) {
	if len(raw) < 2 {
		return ManufacturerData{}, false
	}
	payload := make([]byte, len(raw)-2)
	copy(payload, raw[2:])
	return ManufacturerData{
		CompanyID: binary.LittleEndian.Uint16(raw[0:2]),
		Payload:   payload,
	}, true
}
