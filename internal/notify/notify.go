// Package notify turns detection events into user-visible alerts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/detect"
	"github.com/srg/nearby/internal/groutine"
	"github.com/srg/nearby/internal/ringchan"
	"golang.org/x/term"
)

// Title is the alert heading
const Title = "Smart glasses nearby"

// DefaultCommandTimeout bounds a single external notifier run
const DefaultCommandTimeout = 10 * time.Second

// Message renders the one-line alert body
func Message(ev detect.Event) string {
	return fmt.Sprintf("%s (%d dBm) - %s", ev.DisplayName(), ev.RSSI, ev.Reason)
}

// Terminal writes alerts to a stream. Colors are used only when the stream is a terminal.
type Terminal struct {
	mu      sync.Mutex
	w       io.Writer
	bell    bool
	heading *color.Color
	body    *color.Color
}

// NewTerminal creates a terminal notifier. With bell set, an ASCII BEL precedes each alert.
func NewTerminal(w io.Writer, bell bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{
		w:       w,
		bell:    bell,
		heading: color.New(color.FgRed, color.Bold),
		body:    color.New(color.FgYellow),
	}
	if isTerminal(w) {
		t.heading.EnableColor()
		t.body.EnableColor()
	} else {
		t.heading.DisableColor()
		t.body.DisableColor()
	}
	return t
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// Notify implements Notifier
func (t *Terminal) Notify(ev detect.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefix := ""
	if t.bell {
		prefix = "\a"
	}
	_, err := fmt.Fprintf(t.w, "%s%s %s\n", prefix, t.heading.Sprintf("[%s]", Title), t.body.Sprint(Message(ev)))
	return err
}

// Command runs an external program for every alert, e.g. notify-send.
//
// The command line is passed to the system shell with the title and message
// appended as two positional arguments ($1, $2). Event fields are exported as
// NEARBY_* environment variables and the event JSON is written to stdin.
type Command struct {
	command string
	timeout time.Duration
	logger  *logrus.Logger
}

// NewCommand creates a command notifier; a non-positive timeout selects DefaultCommandTimeout
func NewCommand(command string, timeout time.Duration, logger *logrus.Logger) (*Command, error) {
	if command == "" {
		return nil, errors.New("notify command cannot be empty")
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Command{command: command, timeout: timeout, logger: logger}, nil
}

// Notify implements Notifier
func (c *Command) Notify(ev detect.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	cmd := c.build(ctx, Message(ev))
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(), eventEnv(ev)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	c.logger.WithField("command", c.command).Debug("Running notify command")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("notify command timed out after %s", c.timeout)
		}
		return fmt.Errorf("notify command failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

func (c *Command) build(ctx context.Context, message string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", c.command, Title, message)
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", c.command+` "$1" "$2"`, "nearby", Title, message)
}

func eventEnv(ev detect.Event) []string {
	env := []string{
		"NEARBY_ADDRESS=" + ev.Address,
		"NEARBY_NAME=" + ev.DisplayName(),
		"NEARBY_RSSI=" + strconv.Itoa(ev.RSSI),
		"NEARBY_REASON=" + ev.Reason,
		"NEARBY_COMPANY=" + ev.CompanyName,
		"NEARBY_TIMESTAMP=" + strconv.FormatInt(ev.Timestamp, 10),
	}
	if ev.CompanyID != nil {
		env = append(env, "NEARBY_COMPANY_ID="+*ev.CompanyID)
	}
	return env
}

// Notifier is anything that can show an alert for an event
type Notifier interface {
	Notify(ev detect.Event) error
}

// Multi fans an alert out to several notifiers and joins their errors
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ev detect.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DefaultQueueSize bounds alerts waiting for a slow notifier
const DefaultQueueSize = 16

// Async hands alerts to a single worker goroutine so that Notify never blocks
// the caller. When the worker falls behind, the oldest pending alert is dropped.
type Async struct {
	next   Notifier
	logger *logrus.Logger

	mu     sync.Mutex // guards closed against Send
	closed bool
	queue  *ringchan.Channel[detect.Event]
	done   chan struct{}
}

// NewAsync starts the worker; size <= 0 selects DefaultQueueSize
func NewAsync(next Notifier, size int, logger *logrus.Logger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	a := &Async{
		next:   next,
		logger: logger,
		queue:  ringchan.New[detect.Event](size),
		done:   make(chan struct{}),
	}

	groutine.Go(context.Background(), "notify-worker", func(ctx context.Context) {
		defer close(a.done)
		defer a.logger.Debugf("%s: exiting", groutine.GetName(ctx))

		for ev := range a.queue.C() {
			a.deliver(ev)
		}
	})
	return a
}

// Notify queues ev and returns immediately. It never fails; delivery errors are logged.
func (a *Async) Notify(ev detect.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	if a.queue.Send(ev) {
		a.logger.Warn("Notification queue full, dropped oldest alert")
	}
	return nil
}

func (a *Async) deliver(ev detect.Event) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithField("panic", r).Error("Notifier panic recovered")
		}
	}()
	if err := a.next.Notify(ev); err != nil {
		a.logger.WithError(err).Warn("Failed to show detection notification")
	}
}

// Close stops accepting alerts and waits until the pending ones are delivered
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		a.queue.Close()
	}
	a.mu.Unlock()
	<-a.done
}
