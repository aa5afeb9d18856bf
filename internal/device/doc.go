// Package device models what the radio reports about nearby BLE devices.
//
// It provides:
//   - the Advertisement abstraction implemented by driver adapters
//   - Sample, the single-vendor view used by the detection pipeline
//   - the static company registry used to name manufacturer identifiers
//   - a best-effort alias table standing in for platform device aliases
package device
