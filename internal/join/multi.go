package join

import (
	"sync"
	"time"

	"github.com/platformbuilds/logcorrelate/internal/models"
	"github.com/platformbuilds/logcorrelate/internal/query"
)

// MultiStreamJoiner implements C8: the N-stream generalization of the
// equi-join, for queries with three or more streams (spec §4.8).
type MultiStreamJoiner struct {
	streams       []streamSpec
	joinType      query.JoinType
	joinKeys      []string
	ignoring      []string
	mappings      []query.LabelMapping
	temporal      time.Duration
	filter        []query.Matcher
	lateTolerance time.Duration
	joinKeyName   string

	mu           sync.Mutex
	buckets      []map[string][]*models.LogEvent // one map per stream, indexed like streams
	firstArrival map[string]time.Time
	maxEmittedM  map[string]int
	retiredUnder map[string]bool // unless: value already emitted at retirement

	out chan *models.CorrelatedEvent
}

// NewMultiStreamJoiner builds a joiner for q, which must reference three or
// more streams.
func NewMultiStreamJoiner(q *query.ParsedQuery, lateTolerance time.Duration) *MultiStreamJoiner {
	sqs := q.Streams()
	specs := make([]streamSpec, len(sqs))
	buckets := make([]map[string][]*models.LogEvent, len(sqs))
	for i, sq := range sqs {
		specs[i] = specOf(sq)
		buckets[i] = make(map[string][]*models.LogEvent)
	}
	return &MultiStreamJoiner{
		streams:       specs,
		joinType:      q.JoinType,
		joinKeys:      q.JoinKeys,
		ignoring:      q.Ignoring,
		mappings:      q.LabelMappings,
		temporal:      q.Temporal,
		filter:        q.Filter,
		lateTolerance: lateTolerance,
		joinKeyName:   primaryJoinKeyName(q),
		buckets:       buckets,
		firstArrival:  make(map[string]time.Time),
		maxEmittedM:   make(map[string]int),
		retiredUnder:  make(map[string]bool),
		out:           make(chan *models.CorrelatedEvent, 256),
	}
}

func (j *MultiStreamJoiner) Out() <-chan *models.CorrelatedEvent { return j.out }
func (j *MultiStreamJoiner) Close()                              { close(j.out) }

func (j *MultiStreamJoiner) valueFor(e *models.LogEvent, idx int) (string, bool) {
	if len(j.joinKeys) > 0 {
		return extractJoinValue(e, j.joinKeys, j.mappings, idx != 0)
	}
	return extractIgnoringValue(e, j.ignoring)
}

// Push admits e arriving on stream idx, emitting any newly-eligible
// correlation for its join value.
func (j *MultiStreamJoiner) Push(idx int, e *models.LogEvent) {
	value, ok := j.valueFor(e, idx)
	if !ok {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	first, seen := j.firstArrival[value]
	if !seen {
		j.firstArrival[value] = now
	} else if j.lateTolerance > 0 && now.Sub(first) > j.lateTolerance {
		return
	}

	j.buckets[idx][value] = append(j.buckets[idx][value], e)

	if j.joinType == query.JoinUnless {
		// unless only emits at retirement.
		return
	}

	n := len(j.streams)
	m := j.contributingCount(value)

	emit := false
	switch j.joinType {
	case query.JoinAnd:
		emit = m == n && j.maxEmittedM[value] < m
	case query.JoinOr:
		emit = m > j.maxEmittedM[value]
	}
	if !emit {
		return
	}
	j.maxEmittedM[value] = m
	j.emit(value)
}

// Retire flushes "unless" correlations (exactly one contributing stream)
// once a window's values are no longer expected to change.
func (j *MultiStreamJoiner) Retire() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.joinType != query.JoinUnless {
		return
	}
	for value := range j.firstArrival {
		if j.retiredUnder[value] {
			continue
		}
		if j.contributingCount(value) == 1 {
			j.retiredUnder[value] = true
			j.emit(value)
		}
	}
}

// contributingCount returns the number of streams with at least one event
// for value. Caller must hold j.mu.
func (j *MultiStreamJoiner) contributingCount(value string) int {
	m := 0
	for _, b := range j.buckets {
		if len(b[value]) > 0 {
			m++
		}
	}
	return m
}

// emit builds and pushes the correlation for value from its current
// per-stream contents. Caller must hold j.mu.
func (j *MultiStreamJoiner) emit(value string) {
	byStream := make(map[streamSpec][]*models.LogEvent, len(j.streams))
	for i, spec := range j.streams {
		if evs := j.buckets[i][value]; len(evs) > 0 {
			byStream[spec] = evs
		}
	}
	ce := buildCorrelation(j.joinKeyName, value, byStream, len(j.streams), j.filter, j.temporal)
	if ce == nil {
		return
	}
	select {
	case j.out <- ce:
	default:
	}
}

// RunMultiBatch drains every stream's events fully and returns every
// correlation the query produces (batch mode, spec §4.8).
func RunMultiBatch(q *query.ParsedQuery, perStream [][]*models.LogEvent) []*models.CorrelatedEvent {
	j := NewMultiStreamJoiner(q, 0)
	for i, evs := range perStream {
		if i >= len(j.streams) {
			break
		}
		for _, e := range evs {
			v, ok := j.valueFor(e, i)
			if !ok {
				continue
			}
			j.buckets[i][v] = append(j.buckets[i][v], e)
		}
	}

	n := len(j.streams)
	values := map[string]bool{}
	for _, b := range j.buckets {
		for v := range b {
			values[v] = true
		}
	}

	var results []*models.CorrelatedEvent
	for value := range values {
		m := j.contributingCount(value)
		eligible := false
		switch q.JoinType {
		case query.JoinAnd:
			eligible = m == n
		case query.JoinOr:
			eligible = m >= 1
		case query.JoinUnless:
			eligible = m == 1
		}
		if !eligible {
			continue
		}
		byStream := make(map[streamSpec][]*models.LogEvent, n)
		for i, spec := range j.streams {
			if evs := j.buckets[i][value]; len(evs) > 0 {
				byStream[spec] = evs
			}
		}
		if ce := buildCorrelation(j.joinKeyName, value, byStream, n, q.Filter, q.Temporal); ce != nil {
			results = append(results, ce)
		}
	}
	return results
}
