// Package perfmon implements C10: rolling counters, a ring-buffered latency
// histogram, EMA throughput, and threshold events, backed by
// prometheus/client_golang metric types. The engine never exposes these
// over HTTP; a metrics exporter is out of scope (spec Non-goals), but the
// metric types themselves are the same ones the rest of this codebase uses
// for in-process counters.
package perfmon

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ringCap bounds the latency sample ring buffer (spec §4.10: cap 1000).
const ringCap = 1000

// Thresholds configures when Monitor emits a ThresholdEvent. Zero means
// "no threshold" for that dimension.
type Thresholds struct {
	MaxMeanLatency time.Duration
	MinThroughput  float64 // events/sec
	MaxHeapMB      int64
}

// ThresholdEvent describes one crossed threshold.
type ThresholdEvent struct {
	Kind    string // "latency", "throughput", "heap"
	Value   float64
	Limit   float64
	Message string
}

// Stats is a point-in-time snapshot of Monitor counters.
type Stats struct {
	EventsProcessed   uint64
	CorrelationsFound uint64
	Errors            uint64
	P50, P95, P99     time.Duration
	Throughput        float64
}

// Monitor tracks the engine's rolling performance counters.
type Monitor struct {
	thresholds  Thresholds
	emaAlpha    float64
	onThreshold []func(ThresholdEvent)

	mu             sync.Mutex
	latencies      [ringCap]time.Duration
	head           int
	filled         int
	throughputEMA  float64
	lastObserved   time.Time
	processedCount uint64
	foundCount     uint64
	errorCount     uint64

	processed    prometheus.Counter
	correlations prometheus.Counter
	errors       prometheus.Counter
	latencyObs   prometheus.Histogram
}

// NewMonitor creates a Monitor. Its prometheus metrics are created but
// never registered to a collector registry, since this engine does not
// expose a metrics endpoint; they exist purely as the same observation
// primitives used elsewhere in this codebase.
func NewMonitor(thresholds Thresholds) *Monitor {
	return &Monitor{
		thresholds: thresholds,
		emaAlpha:   0.3,
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logcorrelate_events_processed_total",
			Help: "Total events processed by the correlation engine.",
		}),
		correlations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logcorrelate_correlations_found_total",
			Help: "Total correlations emitted by the correlation engine.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logcorrelate_errors_total",
			Help: "Total errors observed by the correlation engine.",
		}),
		latencyObs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "logcorrelate_event_latency_seconds",
			Help:    "Per-event processing latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Subscribe registers fn to be called whenever a threshold is crossed.
func (m *Monitor) Subscribe(fn func(ThresholdEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onThreshold = append(m.onThreshold, fn)
}

// RecordEvent records one event's processing latency.
func (m *Monitor) RecordEvent(latency time.Duration) {
	m.processed.Inc()
	m.latencyObs.Observe(latency.Seconds())

	m.mu.Lock()
	m.processedCount++
	m.latencies[m.head] = latency
	m.head = (m.head + 1) % ringCap
	if m.filled < ringCap {
		m.filled++
	}

	now := time.Now()
	if !m.lastObserved.IsZero() {
		dt := now.Sub(m.lastObserved).Seconds()
		if dt > 0 {
			inst := 1.0 / dt
			m.throughputEMA = m.emaAlpha*inst + (1-m.emaAlpha)*m.throughputEMA
		}
	}
	m.lastObserved = now
	mean := m.meanLocked()
	throughput := m.throughputEMA
	m.mu.Unlock()

	if m.thresholds.MaxMeanLatency > 0 && mean > m.thresholds.MaxMeanLatency {
		m.fire(ThresholdEvent{Kind: "latency", Value: mean.Seconds(), Limit: m.thresholds.MaxMeanLatency.Seconds(),
			Message: "mean event latency exceeds threshold"})
	}
	if m.thresholds.MinThroughput > 0 && throughput > 0 && throughput < m.thresholds.MinThroughput {
		m.fire(ThresholdEvent{Kind: "throughput", Value: throughput, Limit: m.thresholds.MinThroughput,
			Message: "event throughput below threshold"})
	}
}

// RecordCorrelation increments the correlations-found counter.
func (m *Monitor) RecordCorrelation() {
	m.correlations.Inc()
	m.mu.Lock()
	m.foundCount++
	m.mu.Unlock()
}

// RecordError increments the errors counter.
func (m *Monitor) RecordError() {
	m.errors.Inc()
	m.mu.Lock()
	m.errorCount++
	m.mu.Unlock()
}

// ObserveHeap checks sampled heap usage against the heap threshold. The
// engine calls this from its periodic gcInterval sampler.
func (m *Monitor) ObserveHeap(usedMB int64) {
	if m.thresholds.MaxHeapMB > 0 && usedMB > m.thresholds.MaxHeapMB {
		m.fire(ThresholdEvent{Kind: "heap", Value: float64(usedMB), Limit: float64(m.thresholds.MaxHeapMB),
			Message: "heap usage exceeds configured budget"})
	}
}

func (m *Monitor) fire(ev ThresholdEvent) {
	m.mu.Lock()
	subs := append([]func(ThresholdEvent){}, m.onThreshold...)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// meanLocked computes the mean of the filled portion of the ring buffer.
// Caller must hold m.mu.
func (m *Monitor) meanLocked() time.Duration {
	if m.filled == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < m.filled; i++ {
		sum += m.latencies[i]
	}
	return sum / time.Duration(m.filled)
}

// Percentile returns the p-th percentile (0..100) of the latency ring
// buffer, or 0 if no samples have been recorded.
func (m *Monitor) Percentile(p float64) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.filled == 0 {
		return 0
	}
	sorted := make([]time.Duration, m.filled)
	copy(sorted, m.latencies[:m.filled])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p / 100 * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Snapshot returns a point-in-time view of all counters.
func (m *Monitor) Snapshot() Stats {
	m.mu.Lock()
	processed, found, errs := m.processedCount, m.foundCount, m.errorCount
	throughput := m.throughputEMA
	m.mu.Unlock()

	return Stats{
		EventsProcessed:   processed,
		CorrelationsFound: found,
		Errors:            errs,
		P50:               m.Percentile(50),
		P95:               m.Percentile(95),
		P99:               m.Percentile(99),
		Throughput:        throughput,
	}
}
