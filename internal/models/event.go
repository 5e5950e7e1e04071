// Package models holds the data types shared across the correlation engine:
// the events flowing in from source adapters and the correlated event sets
// the engine emits.
package models

import "time"

// LogEvent is the unit flowing through the system from a source adapter.
type LogEvent struct {
	Timestamp time.Time
	Source    string // adapter name, e.g. "loki", "graylog"
	Stream    string // optional logical stream label (service name)
	Message   string
	Labels    map[string]string // open label set, unique keys
	JoinKeys  map[string]string // populated by the adapter from labels/message
}

// Label returns a label value, tolerant of an absent key.
func (e *LogEvent) Label(name string) (string, bool) {
	if e == nil || e.Labels == nil {
		return "", false
	}
	v, ok := e.Labels[name]
	return v, ok
}

// JoinKey returns a join-key value, tolerant of an absent key.
func (e *LogEvent) JoinKey(name string) (string, bool) {
	if e == nil || e.JoinKeys == nil {
		return "", false
	}
	v, ok := e.JoinKeys[name]
	return v, ok
}

// Completeness describes whether every participating stream of a
// correlation contributed at least one event.
type Completeness string

const (
	Complete Completeness = "complete"
	Partial  Completeness = "partial"
)

// TimeWindow is the earliest/latest timestamp span covered by a correlation.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Duration reports End - Start.
func (w TimeWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

// CorrelationMetadata carries the engine's bookkeeping about a correlation.
type CorrelationMetadata struct {
	Completeness   Completeness
	MatchedStreams []string // source/alias names present, order not significant
	TotalStreams   int
}

// ParticipatingEvent is one event's contribution to a CorrelatedEvent: the
// source event plus the stream alias it was matched under.
type ParticipatingEvent struct {
	Source    string
	Alias     string // the query's alias for this stream, if any
	Timestamp time.Time
	Message   string
	Labels    map[string]string
	Event     *LogEvent // the originating event, for identity comparisons
}

// StreamName returns Alias if set, else Source — the name this event's
// stream is known by within the correlation.
func (p ParticipatingEvent) StreamName() string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.Source
}

// CorrelatedEvent is the unit produced by the engine: a group of events
// from different streams sharing a join value within a bounded time window.
type CorrelatedEvent struct {
	CorrelationID string
	Timestamp     time.Time // earliest event timestamp in the set
	TimeWindow    TimeWindow
	JoinKey       string
	JoinValue     string
	Events        []ParticipatingEvent // time-ascending
	Metadata      CorrelationMetadata
}
