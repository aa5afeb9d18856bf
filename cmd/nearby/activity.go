package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/detect"
	"github.com/srg/nearby/internal/logbuf"
	"github.com/srg/nearby/pkg/config"
)

// activityLog is the terminal counterpart of a log view: lines from any goroutine
// are funneled through one collector goroutine that appends them to the bounded
// buffer and prints them.
type activityLog struct {
	buffer    *logbuf.Buffer
	collector *logbuf.Collector
	out       io.Writer
	debugOn   bool
	logging   bool
	now       func() time.Time

	// detections is owned by the scan loop goroutine
	detections []detect.Event
}

func newActivityLog(cfg *config.Config, out io.Writer, logger *logrus.Logger) *activityLog {
	a := &activityLog{
		buffer:  logbuf.NewBuffer(cfg.Scanner.LogCapacity()),
		out:     out,
		debugOn: cfg.Scanner.Debug,
		logging: cfg.Logging,
		now:     time.Now,
	}
	// lineQueueSize is a valid constant, NewCollector cannot fail here
	a.collector, _ = logbuf.NewCollector(lineQueueSize, a.write, logger)
	return a
}

func (a *activityLog) start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.collector.Start(ctx)
}

func (a *activityLog) stop() error {
	return a.collector.Stop()
}

// write runs on the collector goroutine only
func (a *activityLog) write(line string) {
	a.buffer.Append(line)
	fmt.Fprintln(a.out, line)
}

// debug receives session debug and lifecycle lines
func (a *activityLog) debug(msg string) {
	stamp := a.now().Format(time.TimeOnly)
	if a.debugOn {
		a.collector.Push(fmt.Sprintf("[%s] DEBUG: %s", stamp, msg))
		return
	}
	a.collector.Push(fmt.Sprintf("[%s] %s", stamp, msg))
}

// detection records an event; the log line is written only when logging is enabled
func (a *activityLog) detection(ev detect.Event) {
	a.detections = append(a.detections, ev)
	if a.logging {
		a.collector.Push(ev.LogLine())
	}
}
