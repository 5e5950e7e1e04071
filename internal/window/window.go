// Package window implements C4: the per-window indexed event store. Each
// TimeWindow owns a primary index (join value -> events) and a time-sorted
// secondary view, enforces maxEvents/byte budgets, and retires once wall
// clock passes its late-tolerance boundary.
package window

import (
	"sort"
	"sync"
	"time"

	"github.com/platformbuilds/logcorrelate/internal/models"
)

// Config bounds a single TimeWindow's admission and retention behavior.
type Config struct {
	Start         time.Time
	End           time.Time
	LateTolerance time.Duration
	MaxEvents     int   // 0 means unbounded
	MaxBytes      int64 // approximate byte budget, 0 means unbounded
}

// AdmitResult reports why addEvent accepted or rejected an event.
type AdmitResult int

const (
	Admitted AdmitResult = iota
	RejectedOutOfRange
	RejectedCapacity
)

// bucket holds the events sharing one join value, plus LRU bookkeeping.
type bucket struct {
	key        string
	events     []*models.LogEvent
	bytes      int64
	lastTouch  time.Time
}

// TimeWindow is an in-memory, mutated-by-one-writer bucket store covering
// [Start, End] plus LateTolerance. Per spec §5, it is mutated only by the
// joiner that owns it; callers must not share one TimeWindow across
// joiners.
type TimeWindow struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket
	order   []*models.LogEvent // time-sorted secondary index (arrival-sorted, ~time-sorted)

	eventCount int
	bytesUsed  int64
}

// New creates a TimeWindow over [cfg.Start, cfg.End].
func New(cfg Config) *TimeWindow {
	return &TimeWindow{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
	}
}

// estimateSize is a rough per-event byte estimate used for the byte budget;
// exactness doesn't matter, only monotonic growth with payload size.
func estimateSize(e *models.LogEvent) int64 {
	sz := int64(len(e.Message)) + int64(len(e.Source)) + int64(len(e.Stream)) + 64
	for k, v := range e.Labels {
		sz += int64(len(k) + len(v) + 8)
	}
	for k, v := range e.JoinKeys {
		sz += int64(len(k) + len(v) + 8)
	}
	return sz
}

// AddEvent admits e into the bucket for key, evicting least-recently-used
// buckets (never the one currently receiving e) if the byte budget is
// exceeded. Per spec §4.4.
func (w *TimeWindow) AddEvent(e *models.LogEvent, key string) AdmitResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e.Timestamp.Before(w.cfg.Start.Add(-w.cfg.LateTolerance)) || e.Timestamp.After(w.cfg.End) {
		return RejectedOutOfRange
	}
	if w.cfg.MaxEvents > 0 && w.eventCount >= w.cfg.MaxEvents {
		return RejectedCapacity
	}

	b, ok := w.buckets[key]
	if !ok {
		b = &bucket{key: key}
		w.buckets[key] = b
	}
	b.events = append(b.events, e)
	sz := estimateSize(e)
	b.bytes += sz
	b.lastTouch = time.Now()

	w.eventCount++
	w.bytesUsed += sz
	w.order = append(w.order, e)

	if w.cfg.MaxBytes > 0 && w.bytesUsed > w.cfg.MaxBytes {
		w.evictLRU(key)
	}
	return Admitted
}

// evictLRU drops least-recently-touched buckets (other than protectKey)
// until bytesUsed is back under budget, or only the protected bucket
// remains.
func (w *TimeWindow) evictLRU(protectKey string) {
	for w.bytesUsed > w.cfg.MaxBytes {
		var victim *bucket
		for k, b := range w.buckets {
			if k == protectKey {
				continue
			}
			if victim == nil || b.lastTouch.Before(victim.lastTouch) {
				victim = b
			}
		}
		if victim == nil {
			return
		}
		w.eventCount -= len(victim.events)
		w.bytesUsed -= victim.bytes
		delete(w.buckets, victim.key)
	}
}

// GetEventsByJoinKey returns the events admitted under value, in arrival
// order. O(1) expected.
func (w *TimeWindow) GetEventsByJoinKey(value string) []*models.LogEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.buckets[value]
	if !ok {
		return nil
	}
	out := make([]*models.LogEvent, len(b.events))
	copy(out, b.events)
	return out
}

// JoinValues returns every join value with at least one admitted event.
func (w *TimeWindow) JoinValues() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.buckets))
	for k := range w.buckets {
		out = append(out, k)
	}
	return out
}

// GetEventsByTimeRange returns events with lo <= Timestamp <= hi. It sorts a
// copy of the arrival-ordered secondary index by timestamp and then binary
// searches it, so each call costs O(n log n), not O(log n + k).
func (w *TimeWindow) GetEventsByTimeRange(lo, hi time.Time) []*models.LogEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	// order is arrival-sorted; near-ordered per spec §4.4/§9, so a sort here
	// keeps GetEventsByTimeRange correct without maintaining a separate
	// rebalanced structure on every insert.
	sorted := make([]*models.LogEvent, len(w.order))
	copy(sorted, w.order)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	start := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Timestamp.Before(lo) })
	end := sort.Search(len(sorted), func(i int) bool { return sorted[i].Timestamp.After(hi) })
	if start >= end {
		return nil
	}
	out := make([]*models.LogEvent, end-start)
	copy(out, sorted[start:end])
	return out
}

// EventCount returns the number of admitted events.
func (w *TimeWindow) EventCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.eventCount
}

// BytesUsed returns the approximate byte usage.
func (w *TimeWindow) BytesUsed() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bytesUsed
}

// RetireAt is the instant after which the window should be considered
// retired: windowEnd + lateTolerance.
func (w *TimeWindow) RetireAt() time.Time {
	return w.cfg.End.Add(w.cfg.LateTolerance)
}

// Retired reports whether now is past RetireAt().
func (w *TimeWindow) Retired(now time.Time) bool {
	return now.After(w.RetireAt())
}

// Bounds returns the window's configured [Start, End].
func (w *TimeWindow) Bounds() (time.Time, time.Time) {
	return w.cfg.Start, w.cfg.End
}
