// Package backpressure implements C6: a bounded ingest buffer between
// adapters and joiners. Three thresholds govern admission (spec §4.6):
// once buffered events cross the high watermark the controller enters a
// paused state and drops further admissions until drains bring it back
// below the low watermark; independent of pause state, the buffer itself
// is hard-capped at maxBufferSize, so even events admitted in the window
// before a pause takes effect are dropped once the buffer is truly full.
// This is the same "slow consumer; drop" policy the websocket hub applies
// to its per-client send channel, generalized to one shared buffer with a
// pause/resume hysteresis band instead of one channel per consumer.
package backpressure

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/platformbuilds/logcorrelate/internal/config"
	"github.com/platformbuilds/logcorrelate/internal/logging"
	"github.com/platformbuilds/logcorrelate/internal/models"
)

// Stats is a point-in-time snapshot of controller counters.
type Stats struct {
	Buffered     int
	Processed    uint64
	Dropped      uint64
	PauseEvents  uint64
	ResumeEvents uint64
	Paused       bool
}

// Controller buffers events between adapters and joiners and enforces
// watermark-based admission. Safe for concurrent Submit and Next callers.
type Controller struct {
	cfg    config.BackpressureConfig
	logger logging.Logger

	buf chan *models.LogEvent

	mu     sync.Mutex
	paused bool

	processed    uint64
	dropped      uint64
	pauseEvents  uint64
	resumeEvents uint64
}

// NewController creates a Controller whose buffer holds up to
// cfg.MaxBufferSize events, the hard cap beyond which events are dropped
// regardless of pause state.
func NewController(cfg config.BackpressureConfig, logger logging.Logger) *Controller {
	return &Controller{
		cfg:    cfg,
		logger: logging.OrNop(logger),
		buf:    make(chan *models.LogEvent, cfg.MaxBufferSize),
	}
}

// Submit offers e to the buffer. It reports false (dropped) when the
// controller is paused (occupancy at or above HighWatermark, not yet
// drained back to LowWatermark) or the buffer has hit its hard cap,
// MaxBufferSize.
func (c *Controller) Submit(e *models.LogEvent) bool {
	c.mu.Lock()
	paused := c.paused
	c.mu.Unlock()

	if paused {
		atomic.AddUint64(&c.dropped, 1)
		return false
	}

	select {
	case c.buf <- e:
		c.checkHighWatermark()
		return true
	default:
		// Buffer is at its hard cap (MaxBufferSize); this admission is
		// dropped even though pause hadn't yet been observed.
		atomic.AddUint64(&c.dropped, 1)
		c.checkHighWatermark()
		return false
	}
}

// Next blocks until an event is available, the buffer is closed, or ctx is
// done. Draining via Next is what allows the controller to resume from a
// paused state once occupancy falls under the low watermark.
func (c *Controller) Next(ctx context.Context) (*models.LogEvent, error) {
	select {
	case e, ok := <-c.buf:
		if !ok {
			return nil, context.Canceled
		}
		atomic.AddUint64(&c.processed, 1)
		c.checkLowWatermark()
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Controller) checkHighWatermark() {
	if len(c.buf) < c.cfg.HighWatermark {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		c.paused = true
		atomic.AddUint64(&c.pauseEvents, 1)
		c.logger.Warn("backpressure: buffer at high watermark, pausing admission",
			"high_watermark", c.cfg.HighWatermark)
	}
}

func (c *Controller) checkLowWatermark() {
	if len(c.buf) > c.cfg.LowWatermark {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		c.paused = false
		atomic.AddUint64(&c.resumeEvents, 1)
		c.logger.Info("backpressure: buffer at low watermark, resuming admission",
			"low_watermark", c.cfg.LowWatermark)
	}
}

// Stats returns a snapshot of controller counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	paused := c.paused
	c.mu.Unlock()
	return Stats{
		Buffered:     len(c.buf),
		Processed:    atomic.LoadUint64(&c.processed),
		Dropped:      atomic.LoadUint64(&c.dropped),
		PauseEvents:  atomic.LoadUint64(&c.pauseEvents),
		ResumeEvents: atomic.LoadUint64(&c.resumeEvents),
		Paused:       paused,
	}
}

// Close stops accepting drains; callers must not Submit after Close.
func (c *Controller) Close() {
	close(c.buf)
}
