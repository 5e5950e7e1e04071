package join

import (
	"sync"
	"time"

	"github.com/platformbuilds/logcorrelate/internal/models"
	"github.com/platformbuilds/logcorrelate/internal/query"
)

// Side identifies which stream of a two-stream join an event arrived on.
type Side int

const (
	Left Side = iota
	Right
)

// TwoStreamJoiner implements C7 for exactly two streams, in both batch and
// realtime modes (spec §4.7).
type TwoStreamJoiner struct {
	left, right   streamSpec
	joinType      query.JoinType
	joinKeys      []string
	ignoring      []string
	mappings      []query.LabelMapping
	temporal      time.Duration
	grouping      *query.Grouping
	filter        []query.Matcher
	lateTolerance time.Duration
	joinKeyName   string

	mu              sync.Mutex
	leftBuckets     map[string][]*models.LogEvent
	rightBuckets    map[string][]*models.LogEvent
	firstArrival    map[string]time.Time
	completeEmitted map[string]bool
	partialEmitted  map[string]bool

	out chan *models.CorrelatedEvent
}

// NewTwoStreamJoiner builds a joiner for q, which must reference exactly
// two streams. lateTolerance bounds how long after a join value's first
// observed arrival a late event for that value is still accepted.
func NewTwoStreamJoiner(q *query.ParsedQuery, lateTolerance time.Duration) *TwoStreamJoiner {
	return &TwoStreamJoiner{
		left:            specOf(q.LeftStream),
		right:           specOf(q.RightStream),
		joinType:        q.JoinType,
		joinKeys:        q.JoinKeys,
		ignoring:        q.Ignoring,
		mappings:        q.LabelMappings,
		temporal:        q.Temporal,
		grouping:        q.Grouping,
		filter:          q.Filter,
		lateTolerance:   lateTolerance,
		joinKeyName:     primaryJoinKeyName(q),
		leftBuckets:     make(map[string][]*models.LogEvent),
		rightBuckets:    make(map[string][]*models.LogEvent),
		firstArrival:    make(map[string]time.Time),
		completeEmitted: make(map[string]bool),
		partialEmitted:  make(map[string]bool),
		out:             make(chan *models.CorrelatedEvent, 256),
	}
}

// Out is the channel realtime-mode correlations are emitted to.
func (j *TwoStreamJoiner) Out() <-chan *models.CorrelatedEvent { return j.out }

// Close releases the joiner's output channel. Callers must stop calling
// Push/Retire after Close.
func (j *TwoStreamJoiner) Close() { close(j.out) }

func (j *TwoStreamJoiner) valueFor(e *models.LogEvent, side Side) (string, bool) {
	if len(j.joinKeys) > 0 {
		return extractJoinValue(e, j.joinKeys, j.mappings, side == Right)
	}
	return extractIgnoringValue(e, j.ignoring)
}

// Push admits e arriving on side into the joiner, emitting any
// correlations this arrival completes (realtime mode).
func (j *TwoStreamJoiner) Push(side Side, e *models.LogEvent) {
	value, ok := j.valueFor(e, side)
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

	var ownBuckets, otherBuckets map[string][]*models.LogEvent
	if side == Left {
		ownBuckets, otherBuckets = j.leftBuckets, j.rightBuckets
	} else {
		ownBuckets, otherBuckets = j.rightBuckets, j.leftBuckets
	}
	ownBuckets[value] = append(ownBuckets[value], e)

	if j.joinType == query.JoinUnless {
		// unless only ever emits at retirement, for values that stayed
		// unmatched; an arrival on either side here must not trigger an
		// emission, matched or not.
		return
	}

	if j.completeEmitted[value] {
		return
	}

	otherEvs := otherBuckets[value]
	if len(otherEvs) > 0 {
		j.emitGroups(value, j.leftBuckets[value], j.rightBuckets[value], true)
		j.completeEmitted[value] = true
		return
	}

	if j.joinType == query.JoinOr && side == Left && !j.partialEmitted[value] {
		j.emitGroups(value, j.leftBuckets[value], nil, false)
		j.partialEmitted[value] = true
	}
}

// Retire flushes pending partial correlations for values whose window has
// closed (spec §4.4 retirement, §4.7 "or"/"unless" semantics at retirement).
func (j *TwoStreamJoiner) Retire() {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch j.joinType {
	case query.JoinUnless:
		for value, leftEvs := range j.leftBuckets {
			if len(j.rightBuckets[value]) > 0 || j.partialEmitted[value] {
				continue
			}
			j.emitGroups(value, leftEvs, nil, false)
			j.partialEmitted[value] = true
		}
	case query.JoinOr:
		for value, leftEvs := range j.leftBuckets {
			if j.completeEmitted[value] || j.partialEmitted[value] {
				continue
			}
			j.emitGroups(value, leftEvs, nil, false)
			j.partialEmitted[value] = true
		}
	}
}

// emitGroups applies grouping to split (leftEvs, rightEvs) into one or more
// correlation groups and pushes each non-suppressed result to out. When
// complete is true, a group left with only one side after the temporal
// sub-window is suppressed too. Caller must hold j.mu.
func (j *TwoStreamJoiner) emitGroups(value string, leftEvs, rightEvs []*models.LogEvent, complete bool) {
	for _, byStream := range j.group(leftEvs, rightEvs) {
		ce := buildCorrelation(j.joinKeyName, value, byStream, 2, j.filter, j.temporal)
		if ce == nil || (complete && ce.Metadata.Completeness != models.Complete) {
			continue
		}
		select {
		case j.out <- ce:
		default:
			// consumer too slow; drop rather than block the joiner's single
			// writer goroutine (spec §5 treats the joiner as single-reader).
		}
	}
}

func (j *TwoStreamJoiner) group(leftEvs, rightEvs []*models.LogEvent) []map[streamSpec][]*models.LogEvent {
	if j.grouping != nil && j.grouping.Side == query.GroupLeft && len(rightEvs) > 0 {
		out := make([]map[streamSpec][]*models.LogEvent, 0, len(leftEvs))
		for _, le := range leftEvs {
			out = append(out, map[streamSpec][]*models.LogEvent{j.left: {le}, j.right: rightEvs})
		}
		return out
	}
	if j.grouping != nil && j.grouping.Side == query.GroupRight && len(leftEvs) > 0 {
		out := make([]map[streamSpec][]*models.LogEvent, 0, len(rightEvs))
		for _, re := range rightEvs {
			out = append(out, map[streamSpec][]*models.LogEvent{j.left: leftEvs, j.right: {re}})
		}
		return out
	}
	return []map[streamSpec][]*models.LogEvent{{j.left: leftEvs, j.right: rightEvs}}
}

// RunBatch drains leftEvs and rightEvs fully and returns every correlation
// the query produces, with unspecified-but-stable emission order (batch
// mode, spec §4.7).
func RunBatch(q *query.ParsedQuery, leftEvs, rightEvs []*models.LogEvent) []*models.CorrelatedEvent {
	j := NewTwoStreamJoiner(q, 0)
	for _, e := range leftEvs {
		v, ok := j.valueFor(e, Left)
		if !ok {
			continue
		}
		j.leftBuckets[v] = append(j.leftBuckets[v], e)
	}
	for _, e := range rightEvs {
		v, ok := j.valueFor(e, Right)
		if !ok {
			continue
		}
		j.rightBuckets[v] = append(j.rightBuckets[v], e)
	}

	var results []*models.CorrelatedEvent
	collect := func(value string, l, r []*models.LogEvent, requireComplete bool) {
		for _, byStream := range j.group(l, r) {
			ce := buildCorrelation(j.joinKeyName, value, byStream, 2, j.filter, j.temporal)
			if ce == nil || (requireComplete && ce.Metadata.Completeness != models.Complete) {
				continue
			}
			results = append(results, ce)
		}
	}

	switch q.JoinType {
	case query.JoinAnd:
		for value, l := range j.leftBuckets {
			if r, ok := j.rightBuckets[value]; ok {
				collect(value, l, r, true)
			}
		}
	case query.JoinOr:
		for value, l := range j.leftBuckets {
			collect(value, l, j.rightBuckets[value], false)
		}
	case query.JoinUnless:
		for value, l := range j.leftBuckets {
			if len(j.rightBuckets[value]) == 0 {
				collect(value, l, nil, false)
			}
		}
	}
	return results
}
