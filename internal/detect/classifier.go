// Package detect decides whether an advertisement belongs to a pair of smart
// glasses and builds the resulting detection events.
package detect

import (
	"fmt"
	"strings"

	"github.com/srg/nearby/internal/device"
)

// ReasonSeparator joins reason fragments for display
const ReasonSeparator = ", "

// targetCompanies are the identifiers that classify a device on their own.
// EssilorLuxottica is only used for naming until its identifier is verified.
var targetCompanies = []struct {
	id    uint16
	label string
}{
	{device.CompanyMeta, "Meta"},
	{device.CompanyMetaTechnologies, "Meta"},
	{device.CompanySnap, "Snap"},
}

// nameVariants are checked in order; only the first hit produces a reason
var nameVariants = []string{"rayban", "ray-ban", "ray ban"}

// Result is the verdict for one sample
type Result struct {
	Match bool
	// Reasons holds the heuristic fragments in evaluation order.
	Reasons []string
	// Override is set when a debug override identifier matched.
	Override string
	Vendor   string
}

// Reason returns the display reason: the override when present, otherwise the joined fragments
func (r Result) Reason() string {
	if r.Override != "" {
		return r.Override
	}
	return strings.Join(r.Reasons, ReasonSeparator)
}

// Classify evaluates a sample against the company and name heuristics, plus the
// debug override set when debug is enabled. It has no side effects.
func Classify(s device.Sample, overrides map[uint16]struct{}, debug bool) Result {
	var reasons []string
	id, hasID := s.CompanyID()

	if hasID {
		for _, c := range targetCompanies {
			if id == c.id {
				reasons = append(reasons, fmt.Sprintf("%s Company ID (%s)", c.label, device.FormatCompanyID(id)))
			}
		}
	}

	if s.HasName() {
		lower := strings.ToLower(s.Name)
		for _, v := range nameVariants {
			if strings.Contains(lower, v) {
				reasons = append(reasons, fmt.Sprintf("Device name contains '%s'", v))
				break
			}
		}
	}

	res := Result{Reasons: reasons, Vendor: device.UnknownCompany}
	if hasID {
		res.Vendor = device.CompanyName(id)
		if _, ok := overrides[id]; ok && debug {
			res.Override = fmt.Sprintf("Debug override: Company ID %s matched", device.FormatCompanyID(id))
		}
	}
	res.Match = len(res.Reasons) > 0 || res.Override != ""
	return res
}

// IsTargetCompany reports whether id classifies a device on its own
func IsTargetCompany(id uint16) bool {
	for _, c := range targetCompanies {
		if c.id == id {
			return true
		}
	}
	return false
}
