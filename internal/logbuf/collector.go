package logbuf

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/groutine"
)

const (
	// CollectorStateNotRunning the collector is idle and may be started
	CollectorStateNotRunning uint32 = iota
	// CollectorStateRunning the consumer goroutine is delivering lines
	CollectorStateRunning
	// CollectorStateStopping Stop was called and the goroutine is draining
	CollectorStateStopping

	// MaxQueueSize sets an upper limit on the queue size to guard against accidental misconfiguration.
	MaxQueueSize uint32 = 64 * 1024
)

// CollectorMetrics provides lock-free counters for a Collector
type CollectorMetrics struct {
	Delivered   int64 // lines handed to the consumer
	Overwritten int64 // lines dropped because the consumer fell behind
	Errors      int64
}

// Collector moves lines produced on arbitrary goroutines onto a single consumer
// goroutine. Producers never block: when the queue is full the oldest pending
// line is overwritten.
//
// All methods are thread-safe.
type Collector struct {
	queue   mpmc.RichOverlappedRingBuffer[string]
	consume func(line string)
	logger  *logrus.Logger

	wake chan struct{}

	// lifecycle guards stop, done and the state transitions of Start and Stop
	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	state     uint32

	delivered   int64
	overwritten int64
	errors      int64
}

// NewCollector creates a collector that feeds consume from a queue of the given size
func NewCollector(size uint32, consume func(line string), logger *logrus.Logger) (*Collector, error) {
	if consume == nil {
		return nil, fmt.Errorf("consumer cannot be nil")
	}
	if size == 0 {
		return nil, fmt.Errorf("queue size must be > 0")
	}
	if size > MaxQueueSize {
		return nil, fmt.Errorf("queue size %d exceeds maximum %d", size, MaxQueueSize)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Collector{
		queue:   mpmc.NewOverlappedRingBuffer[string](size),
		consume: consume,
		logger:  logger,
		wake:    make(chan struct{}, 1),
	}, nil
}

// IntoBuffer returns a consumer that appends to b
func IntoBuffer(b *Buffer) func(string) {
	return b.Append
}

// Push queues a line for the consumer goroutine
func (c *Collector) Push(line string) {
	overwrites, err := c.queue.EnqueueM(line)
	if err != nil {
		atomic.AddInt64(&c.errors, 1)
		c.logger.WithError(err).Warn("Log collector: enqueue failed")
		return
	}
	atomic.AddInt64(&c.overwritten, int64(overwrites))

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Start launches the consumer goroutine
func (c *Collector) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if !atomic.CompareAndSwapUint32(&c.state, CollectorStateNotRunning, CollectorStateRunning) {
		switch atomic.LoadUint32(&c.state) {
		case CollectorStateRunning:
			return fmt.Errorf("collector is already running")
		case CollectorStateStopping:
			return fmt.Errorf("collector is stopping, wait for it to finish")
		default:
			return fmt.Errorf("collector is in unknown state %d", atomic.LoadUint32(&c.state))
		}
	}

	// Fresh channels per start cycle to prevent "close of closed channel" panics
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stop, done := c.stop, c.done

	groutine.Go(ctx, "log-collector", func(ctx context.Context) {
		defer func() {
			atomic.StoreUint32(&c.state, CollectorStateNotRunning)
			close(done)
		}()
		defer c.logger.Debugf("%s: exiting", groutine.GetName(ctx))

		for {
			select {
			case <-stop:
				c.drain()
				return
			case <-ctx.Done():
				c.drain()
				return
			case <-c.wake:
				c.drain()
			}
		}
	})
	return nil
}

// drain hands every queued line to the consumer
func (c *Collector) drain() {
	for !c.queue.IsEmpty() {
		line, err := c.queue.Dequeue()
		if err != nil {
			atomic.AddInt64(&c.errors, 1)
			return
		}
		c.deliver(line)
	}
}

func (c *Collector) deliver(line string) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&c.errors, 1)
			c.logger.WithField("panic", r).Error("Log collector: consumer panic recovered")
		}
	}()
	c.consume(line)
	atomic.AddInt64(&c.delivered, 1)
}

// Stop signals the consumer goroutine, waits until it has drained pending lines and exited.
func (c *Collector) Stop() error {
	c.lifecycle.Lock()
	if !atomic.CompareAndSwapUint32(&c.state, CollectorStateRunning, CollectorStateStopping) {
		switch state := atomic.LoadUint32(&c.state); state {
		case CollectorStateNotRunning:
			c.lifecycle.Unlock()
			return nil
		case CollectorStateStopping:
		default:
			c.lifecycle.Unlock()
			return fmt.Errorf("collector is in unknown state %d", state)
		}
	} else {
		close(c.stop)
	}
	done := c.done
	c.lifecycle.Unlock()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		<-done
		return fmt.Errorf("stop completed but exceeded 5s timeout (possible slow consumer)")
	}
}

// Metrics returns a snapshot of the counters
func (c *Collector) Metrics() CollectorMetrics {
	return CollectorMetrics{
		Delivered:   atomic.LoadInt64(&c.delivered),
		Overwritten: atomic.LoadInt64(&c.overwritten),
		Errors:      atomic.LoadInt64(&c.errors),
	}
}

// State returns the current collector state
func (c *Collector) State() uint32 {
	return atomic.LoadUint32(&c.state)
}
