// Package adapter defines the source-adapter contract (C2): the narrow
// interface by which external log systems feed the correlation engine.
// Concrete adapters (talking to a specific log-aggregation backend) are
// external collaborators per spec §1; this package only defines the
// contract and a couple of adapter-agnostic helpers.
package adapter

import (
	"context"
	"io"
	"time"

	"github.com/platformbuilds/logcorrelate/internal/models"
)

// StreamOptions configures a single CreateStream call.
type StreamOptions struct {
	// TimeRange bounds how far back the stream should start from. Defaults
	// to 5 minutes when zero.
	TimeRange time.Duration
	// Limit caps the number of events the adapter will emit; zero means
	// unbounded (until the caller stops pulling or the stream ends).
	Limit int
}

// DefaultTimeRange is used by adapters when StreamOptions.TimeRange is zero.
const DefaultTimeRange = 5 * time.Minute

// WithDefaults returns o with TimeRange filled in if unset.
func (o StreamOptions) WithDefaults() StreamOptions {
	if o.TimeRange <= 0 {
		o.TimeRange = DefaultTimeRange
	}
	return o
}

// EventStream is a lazy pull sequence of LogEvents: a single-reader
// coroutine-shaped contract realized as blocking pull instead of native
// coroutines. Every Next call may suspend on network I/O; Next must honor
// ctx cancellation at its earliest I/O boundary (spec §5).
//
// Next returns io.EOF (wrapped or bare) when the stream ends normally.
// Any other non-nil error aborts the stream; adapters should return a
// *correrr.Error (AdapterFailure) for all failure conditions so the
// engine can classify them per §7.
type EventStream interface {
	Next(ctx context.Context) (*models.LogEvent, error)
	// Close releases stream resources. Idempotent.
	Close() error
}

// ErrStreamClosed is returned by Next after Close has been called.
var ErrStreamClosed = io.ErrClosedPipe

// SourceAdapter is the contract a concrete log source implements.
type SourceAdapter interface {
	// Name is the stable identifier used in query syntax (e.g. "loki").
	Name() string

	// CreateStream opens a lazy sequence of events matching selector.
	// selector is opaque to the engine and forwarded verbatim.
	CreateStream(ctx context.Context, selector string, opts StreamOptions) (EventStream, error)

	// ValidateQuery reports whether selector is syntactically valid for
	// this adapter, without executing it.
	ValidateQuery(selector string) bool

	// AvailableStreams best-effort lists logical stream names this adapter
	// currently knows about. Adapters that cannot enumerate streams may
	// return (nil, nil).
	AvailableStreams(ctx context.Context) ([]string, error)

	// Destroy releases adapter-wide resources (e.g. pooled connections).
	// Idempotent: it must drain in-flight work and be safe to call more
	// than once.
	Destroy() error
}

// SliceStream adapts a pre-materialized slice of events into an EventStream,
// useful for adapters that batch-fetch and for tests.
type SliceStream struct {
	events []*models.LogEvent
	pos    int
	closed bool
}

// NewSliceStream builds an EventStream over events, in order.
func NewSliceStream(events []*models.LogEvent) *SliceStream {
	return &SliceStream{events: events}
}

func (s *SliceStream) Next(ctx context.Context) (*models.LogEvent, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}
