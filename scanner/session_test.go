package scanner_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/srg/nearby/internal/detect"
	"github.com/srg/nearby/internal/device"
	"github.com/srg/nearby/internal/notify"
	"github.com/srg/nearby/internal/testutils"
	"github.com/srg/nearby/pkg/config"
	"github.com/srg/nearby/scanner"
	suitelib "github.com/stretchr/testify/suite"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []detect.Event
	err    error
}

func (n *recordingNotifier) Notify(ev detect.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type SessionTestSuite struct {
	suitelib.Suite

	helper   *testutils.TestHelper
	radio    *testutils.FakeRadio
	clock    *testutils.FakeClock
	notifier *recordingNotifier
	notify   bool

	session    *scanner.Session
	detections *testutils.Recorder[detect.Event]
	debug      *testutils.Recorder[string]
}

func (suite *SessionTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.radio = testutils.NewFakeRadio()
	suite.clock = testutils.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local))
	suite.notifier = &recordingNotifier{}
	suite.notify = true

	s, err := scanner.NewSession(suite.radio,
		scanner.WithLogger(suite.helper.Logger),
		scanner.WithClock(suite.clock.Now),
		scanner.WithNotifier(suite.notifier, func() bool { return suite.notify }),
	)
	suite.Require().NoError(err)
	suite.session = s

	suite.detections = &testutils.Recorder[detect.Event]{}
	suite.debug = &testutils.Recorder[string]{}
	s.AddDetectionListener(suite.detections.Record)
	s.AddDebugListener(suite.debug.Record)
}

func (suite *SessionTestSuite) TearDownTest() {
	suite.session.Stop()
}

func (suite *SessionTestSuite) defaultConfig() config.ScannerConfig {
	return config.DefaultConfig().Scanner
}

func (suite *SessionTestSuite) metaGlasses(rssi int) device.Advertisement {
	return testutils.NewAdvertisementBuilder().
		WithAddress("AA:BB:CC:DD:EE:FF").
		WithName("Ray-Ban Stories").
		WithRSSI(rssi).
		WithManufacturer(device.CompanyMeta, 0x01, 0x02).
		Build()
}

func (suite *SessionTestSuite) debugLinesWithPrefix(prefix string) []string {
	var out []string
	for _, line := range suite.debug.Items() {
		if strings.HasPrefix(line, prefix) {
			out = append(out, line)
		}
	}
	return out
}

func (suite *SessionTestSuite) TestNewSession() {
	suite.Run("rejects nil radio", func() {
		s, err := scanner.NewSession(nil)
		suite.Error(err)
		suite.Nil(s)
	})

	suite.Run("starts idle with default config", func() {
		s, err := scanner.NewSession(testutils.NewFakeRadio())
		suite.Require().NoError(err)
		suite.Equal(scanner.Idle, s.State())
		suite.False(s.IsActive())
		suite.Equal(-75, s.Config().RSSIThreshold)
		suite.Nil(s.LastFailure())
	})
}

func (suite *SessionTestSuite) TestStart() {
	suite.Run("subscribes and emits lifecycle line", func() {
		suite.Require().NoError(suite.session.Start(suite.defaultConfig()))

		suite.True(suite.session.IsActive())
		suite.Equal(scanner.Scanning, suite.session.State())
		suite.True(suite.radio.Driver().Subscribed())
		suite.Contains(suite.debug.Items(), "Scan started: RSSI threshold=-75 dBm")
	})

	suite.Run("second start fails with already active", func() {
		err := suite.session.Start(suite.defaultConfig())
		suite.ErrorIs(err, scanner.ErrAlreadyActive)
		suite.Equal(1, suite.radio.Driver().Starts())
	})
}

func (suite *SessionTestSuite) TestStartErrors() {
	tests := []struct {
		name    string
		prepare func(r *testutils.FakeRadio)
		want    error
	}{
		{
			name:    "radio disabled",
			prepare: func(r *testutils.FakeRadio) { r.SetEnabled(false) },
			want:    scanner.ErrRadioDisabled,
		},
		{
			name:    "scanner error",
			prepare: func(r *testutils.FakeRadio) { r.WithScannerError(errors.New("no adapter")) },
			want:    scanner.ErrDriverUnavailable,
		},
		{
			name:    "nil driver",
			prepare: func(r *testutils.FakeRadio) { r.WithoutDriver() },
			want:    scanner.ErrDriverUnavailable,
		},
		{
			name:    "driver refuses to start",
			prepare: func(r *testutils.FakeRadio) { r.Driver().FailStart(errors.New("boom")) },
			want:    scanner.ErrDriverStart,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			radio := testutils.NewFakeRadio()
			tt.prepare(radio)
			s, err := scanner.NewSession(radio, scanner.WithLogger(suite.helper.Logger))
			suite.Require().NoError(err)

			err = s.Start(suite.defaultConfig())
			suite.ErrorIs(err, tt.want)
			suite.Equal(scanner.Idle, s.State())
			suite.False(s.IsActive())
			suite.False(radio.Driver().Subscribed())
		})
	}

	suite.Run("driver error is wrapped", func() {
		radio := testutils.NewFakeRadio()
		cause := errors.New("boom")
		radio.Driver().FailStart(cause)
		s, err := scanner.NewSession(radio)
		suite.Require().NoError(err)

		err = s.Start(suite.defaultConfig())
		suite.ErrorIs(err, cause)
		suite.ErrorContains(err, "boom")
	})
}

func (suite *SessionTestSuite) TestStop() {
	suite.Run("stop when idle is a no-op", func() {
		suite.session.Stop()
		suite.Equal(scanner.Idle, suite.session.State())
		suite.Equal(0, suite.radio.Driver().Stops())
		suite.Empty(suite.debugLinesWithPrefix("Scan stopped"))
	})

	suite.Run("stop unsubscribes once", func() {
		suite.Require().NoError(suite.session.Start(suite.defaultConfig()))
		suite.session.Stop()
		suite.session.Stop()

		suite.Equal(scanner.Idle, suite.session.State())
		suite.False(suite.radio.Driver().Subscribed())
		suite.Equal(1, suite.radio.Driver().Stops())
		suite.Len(suite.debugLinesWithPrefix("Scan stopped"), 1)
	})

	suite.Run("can start again after stop", func() {
		suite.Require().NoError(suite.session.Start(suite.defaultConfig()))
		suite.True(suite.session.IsActive())
	})
}

func (suite *SessionTestSuite) TestDetection() {
	suite.Require().NoError(suite.session.Start(suite.defaultConfig()))

	suite.radio.Driver().Emit(suite.metaGlasses(-60))

	suite.Require().Equal(1, suite.detections.Len())
	ev := suite.detections.Items()[0]
	suite.Equal("AA:BB:CC:DD:EE:FF", ev.Address)
	suite.Equal("Ray-Ban Stories", ev.DisplayName())
	suite.Equal(-60, ev.RSSI)
	suite.Equal("Meta Company ID (0x01AB), Device name contains 'ray-ban'", ev.Reason)
	suite.Equal("Meta Platforms, Inc.", ev.CompanyName)
	suite.Require().NotNil(ev.CompanyID)
	suite.Equal("0x01AB", *ev.CompanyID)
	suite.Require().NotNil(ev.ManufacturerData)
	suite.Equal("0102", *ev.ManufacturerData)
	suite.Equal(suite.clock.Now().UnixMilli(), ev.Timestamp)
	suite.Equal(1, suite.notifier.count())
}

func (suite *SessionTestSuite) TestRSSIFilter() {
	cfg := suite.defaultConfig()
	cfg.Debug = true
	suite.Require().NoError(suite.session.Start(cfg))

	suite.radio.Driver().Emit(suite.metaGlasses(-90))

	suite.Zero(suite.detections.Len())
	suite.Zero(suite.notifier.count())
	suite.Equal([]string{"Filtered RSSI addr=AA:BB:CC:DD:EE:FF rssi=-90"}, suite.debugLinesWithPrefix("Filtered RSSI"))
	suite.Empty(suite.debugLinesWithPrefix("CLASSIFY"))
}

func (suite *SessionTestSuite) TestThresholdIsInclusive() {
	suite.Require().NoError(suite.session.Start(suite.defaultConfig()))
	suite.radio.Driver().Emit(suite.metaGlasses(-75))
	suite.Equal(1, suite.detections.Len())
}

func (suite *SessionTestSuite) TestCooldown() {
	suite.Run("second match within cooldown only produces an event", func() {
		suite.Require().NoError(suite.session.Start(suite.defaultConfig()))

		suite.radio.Driver().Emit(suite.metaGlasses(-60))
		suite.clock.Advance(500 * time.Millisecond)
		suite.radio.Driver().Emit(suite.metaGlasses(-61))

		suite.Equal(2, suite.detections.Len())
		suite.Equal(1, suite.notifier.count())
	})

	suite.Run("cooldown is global across devices and expires", func() {
		other := testutils.NewAdvertisementBuilder().
			WithAddress("11:22:33:44:55:66").
			WithManufacturer(device.CompanySnap).
			Build()

		suite.radio.Driver().Emit(other)
		suite.Equal(1, suite.notifier.count())

		suite.clock.Advance(10 * time.Second)
		suite.radio.Driver().Emit(other)
		suite.Equal(2, suite.notifier.count())
		suite.Equal(4, suite.detections.Len())
	})
}

func (suite *SessionTestSuite) TestNotificationsDisabled() {
	suite.notify = false
	suite.Require().NoError(suite.session.Start(suite.defaultConfig()))

	suite.radio.Driver().Emit(suite.metaGlasses(-60))
	suite.Equal(1, suite.detections.Len())
	suite.Zero(suite.notifier.count())

	// the cooldown was consumed while notifications were off
	suite.notify = true
	suite.clock.Advance(time.Second)
	suite.radio.Driver().Emit(suite.metaGlasses(-60))
	suite.Zero(suite.notifier.count())

	suite.clock.Advance(10 * time.Second)
	suite.radio.Driver().Emit(suite.metaGlasses(-60))
	suite.Equal(1, suite.notifier.count())
}

func (suite *SessionTestSuite) TestNotifierErrorIsSwallowed() {
	suite.notifier.err = errors.New("display unavailable")
	suite.Require().NoError(suite.session.Start(suite.defaultConfig()))

	suite.radio.Driver().Emit(suite.metaGlasses(-60))
	suite.Equal(1, suite.detections.Len())
	suite.True(suite.session.IsActive())
}

func (suite *SessionTestSuite) TestSlowNotifierDoesNotStallSamples() {
	release := make(chan struct{})
	var shown testutils.Recorder[detect.Event]
	slow := notify.NewAsync(scanner.NotifierFunc(func(ev detect.Event) error {
		<-release
		shown.Record(ev)
		return nil
	}), notify.DefaultQueueSize, suite.helper.Logger)

	s, err := scanner.NewSession(suite.radio,
		scanner.WithLogger(suite.helper.Logger),
		scanner.WithClock(suite.clock.Now),
		scanner.WithNotifier(slow, nil),
	)
	suite.Require().NoError(err)
	var got testutils.Recorder[detect.Event]
	s.AddDetectionListener(got.Record)
	suite.Require().NoError(s.Start(suite.defaultConfig()))

	emitted := make(chan struct{})
	go func() {
		suite.radio.Driver().Emit(suite.metaGlasses(-60))
		close(emitted)
	}()
	select {
	case <-emitted:
	case <-time.After(time.Second):
		suite.Fail("sample processing blocked on the notifier")
	}
	suite.Equal(1, got.Len())

	s.Stop()
	close(release)
	slow.Close()
	suite.Equal(1, shown.Len())
}

func (suite *SessionTestSuite) TestFailureDuringStart() {
	suite.radio.Driver().OnStart(func(cb device.ScanCallback) {
		cb.OnFailure(device.ScanFailedInternalError)
	})

	err := suite.session.Start(suite.defaultConfig())
	suite.ErrorIs(err, scanner.ErrDriverStart)
	var failure *scanner.DriverFailure
	suite.Require().ErrorAs(err, &failure)
	suite.Equal(device.ScanFailedInternalError, failure.Code)

	suite.Equal(scanner.Failed, suite.session.State())
	suite.False(suite.session.IsActive())
	suite.False(suite.radio.Driver().Subscribed())
	suite.Len(suite.debugLinesWithPrefix("Scan failed: code=3"), 1)
	suite.Empty(suite.debugLinesWithPrefix("Scan started"))

	// a later start is not blocked by the failed attempt
	suite.radio.Driver().OnStart(nil)
	suite.Require().NoError(suite.session.Start(suite.defaultConfig()))
	suite.Equal(scanner.Scanning, suite.session.State())
}

func (suite *SessionTestSuite) TestNotifierPanicIsContained() {
	s, err := scanner.NewSession(suite.radio,
		scanner.WithLogger(suite.helper.Logger),
		scanner.WithClock(suite.clock.Now),
		scanner.WithNotifier(scanner.NotifierFunc(func(detect.Event) error { panic("toast crashed") }), nil),
	)
	suite.Require().NoError(err)
	var got testutils.Recorder[detect.Event]
	s.AddDetectionListener(got.Record)

	suite.Require().NoError(s.Start(suite.defaultConfig()))
	suite.NotPanics(func() { suite.radio.Driver().Emit(suite.metaGlasses(-60)) })
	suite.Equal(1, got.Len())
	suite.True(s.IsActive())
	s.Stop()
}

func (suite *SessionTestSuite) TestDebugLines() {
	suite.Run("no debug output when debug is off", func() {
		suite.Require().NoError(suite.session.Start(suite.defaultConfig()))
		suite.radio.Driver().Emit(suite.metaGlasses(-60))

		suite.Empty(suite.debugLinesWithPrefix("ADV "))
		suite.Empty(suite.debugLinesWithPrefix("CLASSIFY"))
		suite.session.Stop()
	})

	suite.Run("raw lines are throttled, classify lines are not", func() {
		cfg := suite.defaultConfig()
		cfg.Debug = true
		suite.Require().NoError(suite.session.Start(cfg))

		suite.clock.Advance(time.Second)
		suite.radio.Driver().Emit(suite.metaGlasses(-60))
		suite.clock.Advance(100 * time.Millisecond)
		suite.radio.Driver().Emit(suite.metaGlasses(-60))
		suite.clock.Advance(200 * time.Millisecond)
		suite.radio.Driver().Emit(suite.metaGlasses(-60))

		suite.Equal([]string{
			"ADV addr=AA:BB:CC:DD:EE:FF name=Ray-Ban Stories rssi=-60 companyId=0x01AB len=2",
			"ADV addr=AA:BB:CC:DD:EE:FF name=Ray-Ban Stories rssi=-60 companyId=0x01AB len=2",
		}, suite.debugLinesWithPrefix("ADV "))
		classify := suite.debugLinesWithPrefix("CLASSIFY")
		suite.Len(classify, 3)
		suite.Contains(classify[0], "match=true")
		suite.Contains(classify[0], "vendor=Meta Platforms, Inc.")
		suite.session.Stop()
	})

	suite.Run("unnamed device without manufacturer data", func() {
		cfg := suite.defaultConfig()
		cfg.Debug = true
		suite.Require().NoError(suite.session.Start(cfg))

		suite.clock.Advance(time.Second)
		suite.radio.Driver().Emit(testutils.NewAdvertisementBuilder().WithAddress("01:02:03:04:05:06").Build())

		suite.Contains(suite.debug.Items(), "ADV addr=01:02:03:04:05:06 name=? rssi=-50 companyId=none len=0")
		suite.Zero(suite.detections.Len())
	})
}

func (suite *SessionTestSuite) TestDebugAdvOnly() {
	cfg := suite.defaultConfig()
	cfg.Debug = true
	cfg.DebugAdvOnly = true
	suite.Require().NoError(suite.session.Start(cfg))

	suite.radio.Driver().Emit(suite.metaGlasses(-60))
	suite.clock.Advance(time.Second)
	suite.radio.Driver().Emit(suite.metaGlasses(-100))
	suite.session.Stop()

	for _, line := range suite.debug.Items() {
		isLifecycle := strings.HasPrefix(line, "Scan ")
		suite.True(isLifecycle || strings.HasPrefix(line, "ADV "), "unexpected line %q", line)
	}
	suite.Len(suite.debugLinesWithPrefix("ADV "), 1)
	suite.Len(suite.debugLinesWithPrefix("Scan stopped"), 1)
}

func (suite *SessionTestSuite) TestDebugOverride() {
	unknown := testutils.NewAdvertisementBuilder().WithManufacturer(0x004C, 0x10).Build()

	suite.Run("ignored without debug", func() {
		cfg := suite.defaultConfig()
		cfg.DebugCompanyIDs = config.NewCompanyIDSet(0x004C)
		suite.Require().NoError(suite.session.Start(cfg))
		suite.radio.Driver().Emit(unknown)
		suite.Zero(suite.detections.Len())
		suite.session.Stop()
	})

	suite.Run("matches with debug", func() {
		cfg := suite.defaultConfig()
		cfg.Debug = true
		cfg.DebugCompanyIDs = config.NewCompanyIDSet(0x004C)
		suite.Require().NoError(suite.session.Start(cfg))
		suite.radio.Driver().Emit(unknown)

		suite.Require().Equal(1, suite.detections.Len())
		ev := suite.detections.Items()[0]
		suite.Equal("Debug override: Company ID 0x004C matched", ev.Reason)
		suite.Equal("Unknown (0x004C)", ev.CompanyName)
	})
}

func (suite *SessionTestSuite) TestBatch() {
	suite.Require().NoError(suite.session.Start(suite.defaultConfig()))
	suite.radio.Driver().EmitBatch(suite.metaGlasses(-60), suite.metaGlasses(-90), suite.metaGlasses(-70))
	suite.Equal(2, suite.detections.Len())
}

func (suite *SessionTestSuite) TestScanFailure() {
	suite.Require().NoError(suite.session.Start(suite.defaultConfig()))
	driver := suite.radio.Driver()

	driver.Fail(device.ScanFailedInternalError)

	suite.Equal(scanner.Failed, suite.session.State())
	suite.False(suite.session.IsActive())
	suite.Require().NotNil(suite.session.LastFailure())
	suite.Equal(device.ScanFailedInternalError, suite.session.LastFailure().Code)
	suite.Contains(suite.debug.Items(), "Scan failed: code=3 (internal error)")
	suite.False(driver.Subscribed())

	suite.Run("samples after failure are dropped", func() {
		suite.session.OnSample(suite.metaGlasses(-60))
		suite.Zero(suite.detections.Len())
	})

	suite.Run("restart from failed", func() {
		suite.Require().NoError(suite.session.Start(suite.defaultConfig()))
		suite.Equal(scanner.Scanning, suite.session.State())
		suite.Nil(suite.session.LastFailure())
	})
}

func (suite *SessionTestSuite) TestFailureWhileIdleIsIgnored() {
	suite.session.OnScanFailed(2)
	suite.Equal(scanner.Idle, suite.session.State())
	suite.Nil(suite.session.LastFailure())
}

func (suite *SessionTestSuite) TestSamplesDuringStartAreProcessed() {
	suite.radio.Driver().OnStart(func(cb device.ScanCallback) {
		cb.OnResult(suite.metaGlasses(-60))
	})
	suite.Require().NoError(suite.session.Start(suite.defaultConfig()))
	suite.Equal(1, suite.detections.Len())
}

func (suite *SessionTestSuite) TestReconfigure() {
	suite.Require().NoError(suite.session.Start(suite.defaultConfig()))

	cfg := suite.defaultConfig()
	cfg.RSSIThreshold = -50
	suite.session.Reconfigure(cfg)
	suite.radio.Driver().Emit(suite.metaGlasses(-60))
	suite.Zero(suite.detections.Len())

	cfg.RSSIThreshold = -500
	suite.session.Reconfigure(cfg)
	suite.Equal(config.MinRSSIThreshold, suite.session.Config().RSSIThreshold)
	suite.radio.Driver().Emit(suite.metaGlasses(-60))
	suite.Equal(1, suite.detections.Len())
}

func (suite *SessionTestSuite) TestStartSnapshotsConfig() {
	cfg := suite.defaultConfig()
	cfg.Debug = true
	cfg.DebugCompanyIDs = config.NewCompanyIDSet(0x004C)
	suite.Require().NoError(suite.session.Start(cfg))

	delete(cfg.DebugCompanyIDs, 0x004C)
	suite.radio.Driver().Emit(testutils.NewAdvertisementBuilder().WithManufacturer(0x004C).Build())
	suite.Equal(1, suite.detections.Len())
}

func (suite *SessionTestSuite) TestRemoveListener() {
	extra := &testutils.Recorder[detect.Event]{}
	h := suite.session.AddDetectionListener(extra.Record)
	suite.Require().NoError(suite.session.Start(suite.defaultConfig()))

	suite.radio.Driver().Emit(suite.metaGlasses(-60))
	suite.session.RemoveDetectionListener(h)
	suite.radio.Driver().Emit(suite.metaGlasses(-60))

	suite.Equal(1, extra.Len())
	suite.Equal(2, suite.detections.Len())
}

func (suite *SessionTestSuite) TestAliasResolver() {
	aliases := device.NewAliasTable(map[string]string{"aa:bb:cc:dd:ee:01": "Ray-Ban Meta"})
	s, err := scanner.NewSession(suite.radio, scanner.WithAliasResolver(aliases))
	suite.Require().NoError(err)
	rec := &testutils.Recorder[detect.Event]{}
	s.AddDetectionListener(rec.Record)
	suite.Require().NoError(s.Start(suite.defaultConfig()))
	defer s.Stop()

	suite.radio.Driver().Emit(testutils.NewAdvertisementBuilder().WithAddress("AA:BB:CC:DD:EE:01").Build())

	suite.Require().Equal(1, rec.Len())
	suite.Equal("Ray-Ban Meta", rec.Items()[0].DisplayName())
	suite.Equal("Device name contains 'ray-ban'", rec.Items()[0].Reason)
}

func (suite *SessionTestSuite) TestStateString() {
	suite.Equal("idle", scanner.Idle.String())
	suite.Equal("scanning", scanner.Scanning.String())
	suite.Equal("failed", scanner.Failed.String())
}

func TestSessionTestSuite(t *testing.T) {
	suitelib.Run(t, new(SessionTestSuite))
}
