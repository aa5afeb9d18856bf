package scanner

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/detect"
	"github.com/srg/nearby/internal/device"
	"github.com/srg/nearby/internal/gate"
	"github.com/srg/nearby/internal/listeners"
	"github.com/srg/nearby/pkg/config"
)

// advPrefix marks raw advertisement debug lines; DebugAdvOnly keeps only these
const advPrefix = "ADV "

// State is the scan session lifecycle state
type State int32

const (
	Idle State = iota
	Scanning
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Notifier shows a user-visible alert for a detection
type Notifier interface {
	Notify(ev detect.Event) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ev detect.Event) error

// Notify implements Notifier
func (f NotifierFunc) Notify(ev detect.Event) error { return f(ev) }

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier sets the alert sink and the host flag that enables it.
// A nil enabled func means notifications are always enabled.
func WithNotifier(n Notifier, enabled func() bool) Option {
	return func(s *Session) {
		s.notifier = n
		if enabled != nil {
			s.notificationsEnabled = enabled
		}
	}
}

// WithAliasResolver sets the best-effort device alias lookup
func WithAliasResolver(r device.AliasResolver) Option {
	return func(s *Session) { s.aliases = r }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithThrottleInterval changes the raw debug line interval
func WithThrottleInterval(d time.Duration) Option {
	return func(s *Session) { s.throttle = gate.NewThrottle(d) }
}

type driverRef struct {
	drv device.Driver
}

// Session owns the scanning state and runs every advertisement through
// classification, listener fan-out and the alert cooldown.
//
// Start and Stop are serialized; samples, failures and state reads may arrive
// from any goroutine.
type Session struct {
	radio                device.Radio
	logger               *logrus.Logger
	notifier             Notifier
	notificationsEnabled func() bool
	aliases              device.AliasResolver
	now                  func() time.Time

	mu          sync.Mutex // serializes Start/Stop
	state       atomic.Int32
	driver      atomic.Pointer[driverRef]
	cfg         atomic.Pointer[config.ScannerConfig]
	lastFailure atomic.Pointer[DriverFailure]

	throttle   *gate.Throttle
	cooldown   gate.Cooldown
	detections *listeners.Registry[detect.Event]
	debug      *listeners.Registry[string]
}

// NewSession creates an idle session bound to radio
func NewSession(radio device.Radio, opts ...Option) (*Session, error) {
	if radio == nil {
		return nil, errors.New("radio cannot be nil")
	}

	s := &Session{
		radio:                radio,
		logger:               logrus.New(),
		notificationsEnabled: func() bool { return true },
		now:                  time.Now,
		throttle:             gate.NewThrottle(gate.DefaultThrottleInterval),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.detections = listeners.New[detect.Event]("detection", s.logger)
	s.debug = listeners.New[string]("debug", s.logger)

	cfg := config.DefaultConfig().Scanner
	s.cfg.Store(&cfg)
	return s, nil
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return State(s.state.Load())
}

// IsActive reports whether the session is scanning
func (s *Session) IsActive() bool {
	return s.State() == Scanning
}

// Config returns the configuration snapshot in use
func (s *Session) Config() config.ScannerConfig {
	return s.cfg.Load().Clone()
}

// LastFailure returns the most recent asynchronous driver failure, or nil
func (s *Session) LastFailure() *DriverFailure {
	return s.lastFailure.Load()
}

// AddDetectionListener subscribes to detection events
func (s *Session) AddDetectionListener(fn func(detect.Event)) listeners.Handle {
	return s.detections.Add(fn)
}

// RemoveDetectionListener unsubscribes a detection listener
func (s *Session) RemoveDetectionListener(h listeners.Handle) {
	s.detections.Remove(h)
}

// AddDebugListener subscribes to debug and lifecycle lines
func (s *Session) AddDebugListener(fn func(string)) listeners.Handle {
	return s.debug.Add(fn)
}

// RemoveDebugListener unsubscribes a debug listener
func (s *Session) RemoveDebugListener(h listeners.Handle) {
	s.debug.Remove(h)
}

// Start snapshots cfg and subscribes to the radio driver.
// It fails with a *StartError when the radio is off, a scan is already active,
// no driver can be obtained, or the driver refuses to start. A failure reported
// by the driver while StartScan is still running also fails Start; the session
// then stays Failed and LastFailure holds the code.
func (s *Session) Start(cfg config.ScannerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == Scanning || s.driver.Load() != nil {
		s.logger.Warn("Already scanning")
		return ErrAlreadyActive
	}
	if !s.radio.Enabled() {
		s.logger.Warn("Bluetooth is not enabled")
		return ErrRadioDisabled
	}

	drv, err := s.radio.Scanner()
	if err != nil || drv == nil {
		s.logger.WithError(err).Error("BLE scanner not available")
		return &StartError{Kind: DriverUnavailable, Err: err}
	}

	snap := cfg.Clone()
	snap.Normalize()
	s.cfg.Store(&snap)
	s.lastFailure.Store(nil)

	// Scanning before StartScan so that samples delivered during the call are processed
	s.driver.Store(&driverRef{drv: drv})
	s.state.Store(int32(Scanning))

	if err := startDriver(drv, s); err != nil {
		s.driver.Store(nil)
		s.state.Store(int32(Idle))
		s.logger.WithError(err).Error("Error starting BLE scan")
		return &StartError{Kind: DriverStartException, Err: err}
	}
	// the driver may report a failure before StartScan returns
	if s.State() != Scanning {
		var cause error = errors.New("scan failed during start")
		if failure := s.LastFailure(); failure != nil {
			cause = failure
		}
		s.logger.WithError(cause).Error("Error starting BLE scan")
		return &StartError{Kind: DriverStartException, Err: cause}
	}

	s.logger.WithFields(logrus.Fields{
		"rssi_threshold": snap.RSSIThreshold,
		"cooldown":       snap.Cooldown,
		"debug":          snap.Debug,
	}).Info("BLE scanning started")
	s.lifecycle(fmt.Sprintf("Scan started: RSSI threshold=%d dBm", snap.RSSIThreshold))
	return nil
}

// startDriver converts a driver panic into an error
func startDriver(drv device.Driver, cb device.ScanCallback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("driver panic: %v", r)
		}
	}()
	return drv.StartScan(cb)
}

// Stop unsubscribes from the driver and returns to Idle. Calling it while not
// scanning is a no-op apart from clearing a Failed state.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	was := State(s.state.Swap(int32(Idle)))
	ref := s.driver.Swap(nil)
	if ref != nil {
		s.stopDriver(ref.drv)
	}
	if was == Scanning {
		s.logger.Info("BLE scanning stopped")
		s.lifecycle("Scan stopped")
	}
}

func (s *Session) stopDriver(drv device.Driver) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Error stopping BLE scan")
		}
	}()
	if err := drv.StopScan(s); err != nil {
		s.logger.WithError(err).Error("Error stopping BLE scan")
	}
}

// Reconfigure replaces the configuration snapshot used for subsequent samples
func (s *Session) Reconfigure(cfg config.ScannerConfig) {
	snap := cfg.Clone()
	snap.Normalize()
	s.cfg.Store(&snap)
	s.logger.WithField("rssi_threshold", snap.RSSIThreshold).Debug("Scanner reconfigured")
}

// OnScanFailed records an asynchronous driver failure. The session moves to
// Failed and releases the driver; it does not retry.
func (s *Session) OnScanFailed(code int) {
	if !s.state.CompareAndSwap(int32(Scanning), int32(Failed)) {
		return
	}
	failure := &DriverFailure{Code: device.ScanFailureCode(code)}
	s.lastFailure.Store(failure)

	if ref := s.driver.Swap(nil); ref != nil {
		s.stopDriver(ref.drv)
	}

	s.logger.WithField("code", code).Error("Scan failed")
	s.lifecycle(fmt.Sprintf("Scan failed: code=%d (%s)", code, failure.Code))
}

// OnResult implements device.ScanCallback
func (s *Session) OnResult(adv device.Advertisement) {
	s.OnSample(adv)
}

// OnBatch implements device.ScanCallback
func (s *Session) OnBatch(advs []device.Advertisement) {
	for _, adv := range advs {
		s.OnSample(adv)
	}
}

// OnFailure implements device.ScanCallback
func (s *Session) OnFailure(code device.ScanFailureCode) {
	s.OnScanFailed(int(code))
}

// OnSample runs one advertisement through the pipeline. Samples arriving while
// the session is not scanning are dropped.
func (s *Session) OnSample(adv device.Advertisement) {
	if adv == nil || s.State() != Scanning {
		return
	}
	cfg := s.cfg.Load()
	now := s.now()

	if adv.RSSI() < cfg.RSSIThreshold {
		s.debugThrottled(cfg, now, fmt.Sprintf("Filtered RSSI addr=%s rssi=%d", adv.Addr(), adv.RSSI()))
		return
	}

	sample := device.NewSample(adv, s.aliases)
	companyID := "none"
	if id, ok := sample.CompanyID(); ok {
		companyID = device.FormatCompanyID(id)
	}
	name := sample.Name
	if name == "" {
		name = "?"
	}

	s.debugThrottled(cfg, now, fmt.Sprintf("%saddr=%s name=%s rssi=%d companyId=%s len=%d",
		advPrefix, sample.Address, name, sample.RSSI, companyID, sample.PayloadLen()))

	res := detect.Classify(sample, cfg.DebugCompanyIDs, cfg.Debug)

	if cfg.Debug {
		s.debugLine(cfg, fmt.Sprintf("CLASSIFY addr=%s name=%s rssi=%d companyId=%s mfgLen=%d match=%t reason=%s vendor=%s",
			sample.Address, name, sample.RSSI, companyID, sample.PayloadLen(), res.Match, res.Reason(), res.Vendor))
	}
	if !res.Match {
		return
	}

	ev := detect.NewEvent(now, sample, res)
	s.logger.WithFields(logrus.Fields{
		"device":  ev.DisplayName(),
		"address": ev.Address,
		"rssi":    ev.RSSI,
		"reason":  ev.Reason,
	}).Info("Smart glasses detected")

	s.detections.Dispatch(ev)
	s.alert(ev, cfg, now)
}

// alert passes the event to the notifier unless the global cooldown is running.
// The cooldown is consumed even when the host has notifications switched off.
func (s *Session) alert(ev detect.Event, cfg *config.ScannerConfig, now time.Time) {
	if !s.cooldown.TryFire(now, cfg.Cooldown) {
		s.logger.Debug("Detection within cooldown period, notification suppressed")
		return
	}
	if s.notifier == nil || !s.notificationsEnabled() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Notifier panic recovered")
		}
	}()
	if err := s.notifier.Notify(ev); err != nil {
		s.logger.WithError(err).Warn("Failed to show detection notification")
	}
}

func (s *Session) debugThrottled(cfg *config.ScannerConfig, now time.Time, msg string) {
	if !cfg.Debug || !passesFilter(cfg, msg) {
		return
	}
	if !s.throttle.ShouldEmit(now) {
		return
	}
	s.debug.Dispatch(msg)
}

func (s *Session) debugLine(cfg *config.ScannerConfig, msg string) {
	if !cfg.Debug || !passesFilter(cfg, msg) {
		return
	}
	s.debug.Dispatch(msg)
}

// lifecycle lines bypass the debug flag, the ADV-only filter and the throttle
func (s *Session) lifecycle(msg string) {
	s.debug.Dispatch(msg)
}

func passesFilter(cfg *config.ScannerConfig, msg string) bool {
	return !cfg.DebugAdvOnly || strings.HasPrefix(msg, advPrefix)
}
