package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pinnedref/pinnedref/pkg/kafka"
	"github.com/pinnedref/pinnedref/pkg/logger"
)

// Publisher delivers a batch of events. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

const (
	defaultBufferSize    = 10000
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	shutdownFlushTimeout = 5 * time.Second
)

// Collector buffers events and publishes them in batches from a background
// goroutine. Tracking never blocks: when the buffer is full the event is
// dropped and counted. A nil *Collector ignores every call.
type Collector struct {
	publisher     Publisher
	eventCh       chan any
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}

	mu     sync.RWMutex
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan any, bufferSize),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        logger.WithComponent("analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It stops when ctx is cancelled or Close
// is called, flushing whatever is buffered.
func (c *Collector) Start(ctx context.Context) {
	go c.loop(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) TrackSearch(e SearchEvent) {
	c.track(NewSearchEvent(e))
}

func (c *Collector) TrackView(e ViewEvent) {
	c.track(NewViewEvent(e))
}

func (c *Collector) track(event any) {
	if c == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		if n := c.dropped.Add(1); n%1000 == 1 {
			c.logger.Warn("analytics event dropped (buffer full)", "dropped_total", n)
		}
	}
}

// Close stops accepting events and waits for the buffered ones to be
// published.
func (c *Collector) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

// Counts returns the published, dropped and failed event totals.
func (c *Collector) Counts() (published, dropped, failed int64) {
	return c.published.Load(), c.dropped.Load(), c.failed.Load()
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	batch := make([]kafka.Event, 0, c.batchSize)

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.flushOnShutdown(batch)
				return
			}
			batch = append(batch, kafka.Event{Key: eventKey(event), Value: event})
			if len(batch) >= c.batchSize {
				batch = c.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = c.flush(ctx, batch)
		case <-ctx.Done():
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			for drained := false; !drained; {
				select {
				case event, ok := <-c.eventCh:
					if !ok {
						drained = true
						break
					}
					batch = append(batch, kafka.Event{Key: eventKey(event), Value: event})
				default:
					drained = true
				}
			}
			c.flushOnShutdown(batch)
			return
		}
	}
}

func (c *Collector) flushOnShutdown(batch []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	c.flush(ctx, batch)
}

// flush publishes batch and returns it emptied. A failed batch is dropped.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.failed.Add(int64(len(batch)))
		c.logger.Error("analytics batch publish failed", "events", len(batch), "error", err)
	} else {
		c.published.Add(int64(len(batch)))
	}
	return batch[:0]
}

// Loopback publishes straight into an Aggregator, for running without a
// broker.
type Loopback struct {
	Aggregator *Aggregator
}

func (l Loopback) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, e := range events {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return err
		}
		if err := l.Aggregator.HandleMessage(ctx, []byte(e.Key), value); err != nil {
			return err
		}
	}
	return nil
}
