package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// Collector publishes search events to Kafka in batches from a background
// goroutine. Track never blocks: when the buffer is full the event is
// dropped.
type Collector struct {
	publisher     kafka.Publisher
	eventCh       chan SearchEvent
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Int64
	onDrop        func()
	logger        *slog.Logger
	done          chan struct{}
	started       atomic.Bool
	closeOnce     sync.Once
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithBatching sets the largest batch and the longest time an event waits
// before being published.
func WithBatching(size int, interval time.Duration) CollectorOption {
	return func(c *Collector) {
		if size > 0 {
			c.batchSize = size
		}
		if interval > 0 {
			c.flushInterval = interval
		}
	}
}

// WithDropHook calls fn for every dropped event.
func WithDropHook(fn func()) CollectorOption {
	return func(c *Collector) { c.onDrop = fn }
}

func NewCollector(publisher kafka.Publisher, bufferSize int, opts ...CollectorOption) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	c := &Collector{
		publisher:     publisher,
		eventCh:       make(chan SearchEvent, bufferSize),
		batchSize:     100,
		flushInterval: time.Second,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the publish loop. It stops, after publishing what is
// buffered, when Close is called.
func (c *Collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		batch := make([]kafka.Event, 0, c.batchSize)
		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				return
			}
			if err := c.publisher.PublishBatch(ctx, batch); err != nil {
				c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
			}
			batch = batch[:0]
		}

		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
					flush(shutdownCtx)
					cancel()
					return
				}
				batch = append(batch, kafka.Event{Key: event.Fingerprint, Value: event})
				if len(batch) >= c.batchSize {
					flush(ctx)
				}
			case <-ticker.C:
				flush(ctx)
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh), "batch_size", c.batchSize)
}

// Track queues event for publishing.
func (c *Collector) Track(event SearchEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		if c.onDrop != nil {
			c.onDrop()
		}
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Dropped returns how many events Track has discarded.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits until the buffered ones are
// published. Track must not be called after Close.
func (c *Collector) Close() {
	c.closeOnce.Do(func() { close(c.eventCh) })
	if c.started.Load() {
		<-c.done
	}
}
