package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/nearby/internal/detect"
	"github.com/srg/nearby/internal/device"
	goble "github.com/srg/nearby/internal/device/go-ble"
	"github.com/srg/nearby/internal/device/tinygo"
	"github.com/srg/nearby/internal/notify"
	"github.com/srg/nearby/internal/ringchan"
	"github.com/srg/nearby/pkg/config"
	"github.com/srg/nearby/scanner"
)

const (
	// eventQueueSize bounds detections waiting for the main loop
	eventQueueSize = 256
	// lineQueueSize bounds log lines waiting for the output goroutine
	lineQueueSize uint32 = 4096

	stateCheckInterval = 100 * time.Millisecond
)

// radioFactory opens the BLE radio for a driver name. Tests replace it with a fake.
var radioFactory = func(driver string, logger *logrus.Logger) (device.Radio, func(), error) {
	switch driver {
	case config.DriverTinyGo:
		return tinygo.NewRadio(nil, logger), func() {}, nil
	case config.DriverGoBLE, "":
		r := goble.NewRadio(logger)
		return r, func() {
			if err := r.Close(); err != nil {
				logger.WithError(err).Debug("Failed to close BLE device")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown driver %q", driver)
	}
}

// scanOptions carries flag values that are not part of config.Config
type scanOptions struct {
	configPath string
	duration   time.Duration
	exportDir  string
	bell       bool
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for smart glasses nearby",
		Long: `Scan BLE advertisements and alert when smart glasses appear to be nearby.

Every advertisement above the RSSI threshold is classified by manufacturer
company identifier and device name. Matches are written to the activity log and
raise an alert, at most once per cooldown period across all devices.

Settings are read from --config (YAML) when given; flags override file values.`,
		Example: `  nearby scan
  nearby scan --rssi -85 --cooldown 30s
  nearby scan --debug --debug-company-ids "0x004C, 0x0006" --max-lines 500
  nearby scan --notify-cmd notify-send --duration 10m --export ./logs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}

	defaults := config.DefaultConfig()
	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	flags.DurationVarP(&opts.duration, "duration", "d", 0, "Scan duration (0 scans until interrupted)")
	flags.StringVar(&opts.exportDir, "export", "", "Directory to export the activity log to on exit")
	flags.BoolVar(&opts.bell, "bell", false, "Ring the terminal bell on alerts")

	flags.String("driver", defaults.Driver, "BLE driver (go-ble, tinygo)")
	flags.Int("rssi", defaults.Scanner.RSSIThreshold, "Minimum RSSI in dBm (-120..0)")
	flags.Duration("cooldown", defaults.Scanner.Cooldown, "Minimum time between alerts (0..10m)")
	flags.Bool("debug", false, "Show per-advertisement debug lines")
	flags.Bool("debug-adv-only", false, "With --debug, only show raw ADV lines")
	flags.String("debug-company-ids", "", "With --debug, company IDs that always match (e.g. \"0x01AB, 427\")")
	flags.Int("max-lines", defaults.Scanner.DebugMaxLines, "Activity log size while debugging (50..5000)")
	flags.Bool("no-notify", false, "Disable alerts")
	flags.Bool("no-log", false, "Do not write detections to the activity log")
	flags.String("notify-cmd", "", "Command to run for every alert; receives title and message as arguments")

	return cmd
}

// loadScanConfig reads the config file, if any, and applies explicitly set flags on top
func loadScanConfig(cmd *cobra.Command, opts *scanOptions) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(opts.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Driver, _ = flags.GetString("driver")
	}
	if flags.Changed("rssi") {
		cfg.Scanner.RSSIThreshold, _ = flags.GetInt("rssi")
	}
	if flags.Changed("cooldown") {
		cfg.Scanner.Cooldown, _ = flags.GetDuration("cooldown")
	}
	if flags.Changed("debug") {
		cfg.Scanner.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("debug-adv-only") {
		cfg.Scanner.DebugAdvOnly, _ = flags.GetBool("debug-adv-only")
	}
	if flags.Changed("debug-company-ids") {
		raw, _ := flags.GetString("debug-company-ids")
		cfg.Scanner.DebugCompanyIDs = config.ParseCompanyIDs(raw)
	}
	if flags.Changed("max-lines") {
		cfg.Scanner.DebugMaxLines, _ = flags.GetInt("max-lines")
	}
	if noNotify, _ := flags.GetBool("no-notify"); noNotify {
		cfg.Notifications = false
	}
	if noLog, _ := flags.GetBool("no-log"); noLog {
		cfg.Logging = false
	}
	if flags.Changed("notify-cmd") {
		cfg.NotifyCommand, _ = flags.GetString("notify-cmd")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Scanner.Normalize()
	return cfg, nil
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	cfg, err := loadScanConfig(cmd, opts)
	if err != nil {
		return err
	}

	var fallback *logrus.Level
	if opts.configPath != "" {
		fallback = &cfg.LogLevel
	}
	logger, err := configureLogger(cmd, "verbose", fallback)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	radio, closeRadio, err := radioFactory(cfg.Driver, logger)
	if err != nil {
		return err
	}
	defer closeRadio()

	notifier, err := buildNotifier(cfg, opts, cmd.ErrOrStderr(), logger)
	if err != nil {
		return err
	}
	defer notifier.Close()

	session, err := scanner.NewSession(radio,
		scanner.WithLogger(logger),
		scanner.WithAliasResolver(device.NewAliasTable(cfg.Aliases)),
		scanner.WithNotifier(notifier, func() bool { return cfg.Notifications }),
	)
	if err != nil {
		return fmt.Errorf("failed to create scan session: %w", err)
	}

	activity := newActivityLog(cfg, cmd.OutOrStdout(), logger)
	if err := activity.start(cmd.Context()); err != nil {
		return err
	}

	events := ringchan.New[detect.Event](eventQueueSize)
	session.AddDetectionListener(func(ev detect.Event) {
		if events.Send(ev) {
			logger.Warn("Detection queue full, dropped oldest event")
		}
	})
	session.AddDebugListener(activity.debug)

	ctx, cancel := scanContext(cmd.Context(), opts.duration)
	defer cancel()

	if err := session.Start(cfg.Scanner); err != nil {
		_ = activity.stop()
		return err
	}

	runErr := scanLoop(ctx, session, events, activity)
	session.Stop()
	// flush pending alerts before the summary
	notifier.Close()

	// pick up detections delivered while stopping
	for {
		ev, ok := events.TryReceive()
		if !ok {
			break
		}
		activity.detection(ev)
	}

	if err := activity.stop(); err != nil {
		logger.WithError(err).Warn("Activity log did not stop cleanly")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d detection(s)\n", len(activity.detections))

	if opts.exportDir != "" {
		txtPath, jsonPath, err := exportActivity(opts.exportDir, time.Now(), activity.buffer, activity.detections)
		switch {
		case errors.Is(err, ErrNothingToExport):
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to export")
		case err != nil:
			return err
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s and %s\n", txtPath, jsonPath)
		}
	}

	return runErr
}

// scanContext cancels on Ctrl+C, SIGTERM or after duration (when positive)
func scanContext(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if duration <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, duration)
	return ctx, func() {
		cancel()
		stop()
	}
}

// scanLoop moves detections into the activity log until ctx ends or the driver fails
func scanLoop(ctx context.Context, session *scanner.Session, events *ringchan.Channel[detect.Event], activity *activityLog) error {
	ticker := time.NewTicker(stateCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events.C():
			activity.detection(ev)
		case <-ticker.C:
			if session.State() == scanner.Failed {
				if failure := session.LastFailure(); failure != nil {
					return failure
				}
				return errors.New("scan failed")
			}
		}
	}
}

// buildNotifier chains the terminal alert and the optional command behind one
// worker goroutine; alerts never run on the radio delivery goroutine.
func buildNotifier(cfg *config.Config, opts *scanOptions, w io.Writer, logger *logrus.Logger) (*notify.Async, error) {
	notifiers := notify.Multi{notify.NewTerminal(w, opts.bell)}
	if cfg.NotifyCommand != "" {
		c, err := notify.NewCommand(cfg.NotifyCommand, notify.DefaultCommandTimeout, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, c)
	}
	return notify.NewAsync(notifiers, notify.DefaultQueueSize, logger), nil
}
