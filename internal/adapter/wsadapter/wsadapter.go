// Package wsadapter implements a protocol-generic SourceAdapter (C2) over a
// push-style WebSocket transport: connect, send a subscribe frame carrying
// the opaque selector, and decode one LogEvent per inbound text message.
// It is deliberately backend-agnostic — wiring it to any specific log
// system's WebSocket API is outside this engine's scope — but it is a
// complete, usable adapter for any source that speaks this framing.
//
// Reconnection uses exponential backoff with jitter, capped at MaxRetries,
// the same contract §4.2 requires of every adapter; after exhaustion the
// stream fails with a typed correrr.Error.
package wsadapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/platformbuilds/logcorrelate/internal/adapter"
	"github.com/platformbuilds/logcorrelate/internal/correrr"
	"github.com/platformbuilds/logcorrelate/internal/logging"
	"github.com/platformbuilds/logcorrelate/internal/models"
)

// Config configures an Adapter instance.
type Config struct {
	// SourceName is the stable identifier used in query syntax.
	SourceName string
	// URL is the WebSocket endpoint to dial.
	URL string
	// MaxRetries bounds reconnect attempts after a transport failure.
	MaxRetries int
	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// wireEvent is the JSON frame this adapter expects for each event: an
// ISO-8601 timestamp on the wire, parsed into models.LogEvent.Timestamp.
type wireEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Stream    string            `json:"stream"`
	Message   string            `json:"message"`
	Labels    map[string]string `json:"labels"`
	JoinKeys  map[string]string `json:"join_keys"`
}

type subscribeFrame struct {
	Selector    string `json:"selector"`
	TimeRangeMS int64  `json:"time_range_ms"`
	Limit       int    `json:"limit"`
}

// Adapter is a generic WebSocket-push SourceAdapter.
type Adapter struct {
	cfg    Config
	logger logging.Logger

	mu        sync.Mutex
	destroyed bool
}

// New builds an Adapter. A nil logger is replaced with a no-op one.
func New(cfg Config, logger logging.Logger) *Adapter {
	return &Adapter{cfg: cfg.withDefaults(), logger: logging.OrNop(logger)}
}

func (a *Adapter) Name() string { return a.cfg.SourceName }

// ValidateQuery always reports true: selectors are opaque and forwarded
// verbatim to the remote endpoint, which is the only party able to
// validate them.
func (a *Adapter) ValidateQuery(selector string) bool { return true }

// AvailableStreams is not supported by this generic transport.
func (a *Adapter) AvailableStreams(ctx context.Context) ([]string, error) { return nil, nil }

// Destroy marks the adapter unusable for new streams. Idempotent.
func (a *Adapter) Destroy() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.destroyed = true
	return nil
}

// CreateStream dials the configured endpoint, subscribes with selector and
// opts, and returns a lazily-decoded EventStream.
func (a *Adapter) CreateStream(ctx context.Context, selector string, opts adapter.StreamOptions) (adapter.EventStream, error) {
	a.mu.Lock()
	destroyed := a.destroyed
	a.mu.Unlock()
	if destroyed {
		return nil, correrr.AdapterFailure(a.cfg.SourceName, correrr.SubKindRemoteError, fmt.Errorf("adapter destroyed"))
	}

	s := &eventStream{
		cfg:    a.cfg,
		logger: a.logger,
		events: make(chan *models.LogEvent, 256),
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go s.run(ctx, selector, opts)
	return s, nil
}

type eventStream struct {
	cfg    Config
	logger logging.Logger

	events chan *models.LogEvent
	errc   chan error
	done   chan struct{}
	once   sync.Once
}

func (s *eventStream) run(ctx context.Context, selector string, opts adapter.StreamOptions) {
	defer close(s.events)

	bo := backoff.NewExponentialBackOff()
	attempts := 0

	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
		if err != nil {
			attempts++
			if attempts > s.cfg.MaxRetries {
				s.fail(correrr.AdapterFailure(s.cfg.SourceName, correrr.SubKindMaxRetries, err))
				return
			}
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				s.fail(correrr.AdapterFailure(s.cfg.SourceName, correrr.SubKindMaxRetries, err))
				return
			}
			s.logger.Warn("wsadapter: dial failed, retrying", "source", s.cfg.SourceName, "attempt", attempts, "wait", wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
		attempts = 0
		bo.Reset()

		if err := conn.WriteJSON(subscribeFrame{
			Selector:    selector,
			TimeRangeMS: opts.TimeRange.Milliseconds(),
			Limit:       opts.Limit,
		}); err != nil {
			s.fail(correrr.AdapterFailure(s.cfg.SourceName, correrr.SubKindRemoteError, err))
			conn.Close()
			return
		}

		closeWatch := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-s.done:
				conn.Close()
			case <-closeWatch:
			}
		}()

		reconnect := s.readLoop(conn)
		close(closeWatch)
		conn.Close()
		if !reconnect {
			return
		}
	}
}

// readLoop decodes inbound frames until the connection fails. It returns
// true if the caller should attempt to reconnect (transient failure) and
// false if the stream was deliberately closed.
func (s *eventStream) readLoop(conn *websocket.Conn) bool {
	for {
		var w wireEvent
		if err := conn.ReadJSON(&w); err != nil {
			select {
			case <-s.done:
				return false
			default:
				return true
			}
		}

		e := &models.LogEvent{
			Timestamp: w.Timestamp,
			Source:    s.cfg.SourceName,
			Stream:    w.Stream,
			Message:   w.Message,
			Labels:    w.Labels,
			JoinKeys:  w.JoinKeys,
		}
		if e.JoinKeys == nil {
			e.JoinKeys = adapter.ExtractJoinKeysFromMessage(e.Message)
		}
		select {
		case s.events <- e:
		case <-s.done:
			return false
		}
	}
}

func (s *eventStream) fail(err error) {
	select {
	case s.errc <- err:
	default:
	}
}

func (s *eventStream) Next(ctx context.Context) (*models.LogEvent, error) {
	select {
	case e, ok := <-s.events:
		if !ok {
			select {
			case err := <-s.errc:
				return nil, err
			default:
				return nil, adapter.ErrStreamClosed
			}
		}
		return e, nil
	case err := <-s.errc:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *eventStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
