package device

// ScanCallback receives everything a running scan produces
type ScanCallback interface {
	OnResult(adv Advertisement)
	OnBatch(advs []Advertisement)
	OnFailure(code ScanFailureCode)
}

// Driver is an active scanner handle obtained from a Radio
type Driver interface {
	StartScan(cb ScanCallback) error
	StopScan(cb ScanCallback) error
}

// Radio is the local BLE adapter
type Radio interface {
	Enabled() bool
	// Scanner returns a driver handle, or an error when none can be obtained.
	Scanner() (Driver, error)
}
