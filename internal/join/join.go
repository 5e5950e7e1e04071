// Package join implements C7 (two-stream) and C8 (multi-stream) joiners:
// the online, windowed equi-join that turns per-stream LogEvent sequences
// into CorrelatedEvent groups per spec §4.7/§4.8.
package join

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/platformbuilds/logcorrelate/internal/corrid"
	"github.com/platformbuilds/logcorrelate/internal/models"
	"github.com/platformbuilds/logcorrelate/internal/query"
)

// streamSpec names one stream participating in a join: its adapter source
// and, if the query supplied one, its alias.
type streamSpec struct {
	source string
	alias  string
}

func (s streamSpec) name() string {
	if s.alias != "" {
		return s.alias
	}
	return s.source
}

func specOf(sq query.StreamQuery) streamSpec {
	return streamSpec{source: sq.Source, alias: sq.Alias}
}

// extractJoinValue resolves e's join value against keys in order, applying
// the side-specific label mapping substitution (spec §4.7a). Left-side
// events (isRightSide false) look keys up under their own name; right-side
// events use the mapping's "right" name when a mapping exists for the key.
func extractJoinValue(e *models.LogEvent, keys []string, mappings []query.LabelMapping, isRightSide bool) (string, bool) {
	for _, k := range keys {
		name := k
		if isRightSide {
			if m, ok := mappingFor(mappings, k); ok {
				name = m.Right
			}
		}
		if v, ok := e.Label(name); ok && v != "" {
			return v, true
		}
		if v, ok := e.JoinKey(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func mappingFor(mappings []query.LabelMapping, key string) (query.LabelMapping, bool) {
	for _, m := range mappings {
		if m.Left == key {
			return m, true
		}
	}
	return query.LabelMapping{}, false
}

// extractIgnoringValue builds a composite join value from every label not
// named in ignoring, sorted for determinism (spec §4.7a, ignoring branch).
func extractIgnoringValue(e *models.LogEvent, ignoring []string) (string, bool) {
	ignoreSet := make(map[string]bool, len(ignoring))
	for _, k := range ignoring {
		ignoreSet[k] = true
	}
	names := make([]string, 0, len(e.Labels))
	for k := range e.Labels {
		if !ignoreSet[k] {
			names = append(names, k)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, k := range names {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s:%s", k, e.Labels[k])
	}
	return sb.String(), true
}

// applyTemporal filters events to those within temporal of the earliest
// kept event, per spec §4.7b. A zero temporal is a no-op.
func applyTemporal(events []*models.LogEvent, temporal time.Duration) []*models.LogEvent {
	if temporal <= 0 || len(events) == 0 {
		return events
	}
	earliest := events[0].Timestamp
	for _, e := range events {
		if e.Timestamp.Before(earliest) {
			earliest = e.Timestamp
		}
	}
	out := make([]*models.LogEvent, 0, len(events))
	for _, e := range events {
		if e.Timestamp.Sub(earliest) <= temporal && earliest.Sub(e.Timestamp) <= temporal {
			out = append(out, e)
		}
	}
	return out
}

// matches reports whether e satisfies matcher m.
func matches(e *models.LogEvent, m query.Matcher) bool {
	v, ok := e.Label(m.Label)
	if !ok {
		v, ok = e.JoinKey(m.Label)
	}
	switch m.Op {
	case query.MatchEq:
		return ok && v == m.Value
	case query.MatchNe:
		return !ok || v != m.Value
	case query.MatchReEq:
		re, err := regexp.Compile(m.Value)
		return ok && err == nil && re.MatchString(v)
	case query.MatchReNe:
		re, err := regexp.Compile(m.Value)
		if err != nil {
			return false
		}
		return !ok || !re.MatchString(v)
	}
	return false
}

// passesFilter reports whether at least one event in events satisfies
// every matcher simultaneously (spec §4.7d).
func passesFilter(events []*models.LogEvent, filter []query.Matcher) bool {
	if len(filter) == 0 {
		return true
	}
	for _, e := range events {
		ok := true
		for _, m := range filter {
			if !matches(e, m) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// participatingEvents converts tagged event slices into time-ascending
// ParticipatingEvents (spec §4.7e).
func participatingEvents(tagged []taggedEvent) []models.ParticipatingEvent {
	sort.Slice(tagged, func(i, j int) bool {
		return tagged[i].event.Timestamp.Before(tagged[j].event.Timestamp)
	})
	out := make([]models.ParticipatingEvent, len(tagged))
	for i, t := range tagged {
		out[i] = models.ParticipatingEvent{
			Source:    t.spec.source,
			Alias:     t.spec.alias,
			Timestamp: t.event.Timestamp,
			Message:   t.event.Message,
			Labels:    t.event.Labels,
			Event:     t.event,
		}
	}
	return out
}

type taggedEvent struct {
	spec  streamSpec
	event *models.LogEvent
}

// buildCorrelation assembles a CorrelatedEvent from per-stream event sets,
// applying the temporal sub-window and post-filter, returning nil if the
// candidate is suppressed by either. joinKeyName is the primary join-key
// name used (empty when the query used ignoring()).
func buildCorrelation(joinKeyName, joinVal string, byStream map[streamSpec][]*models.LogEvent, totalStreams int, filter []query.Matcher, temporal time.Duration) *models.CorrelatedEvent {
	var all []*models.LogEvent
	for _, evs := range byStream {
		all = append(all, evs...)
	}
	if len(all) == 0 {
		return nil
	}

	all = applyTemporal(all, temporal)
	if len(all) == 0 {
		return nil
	}
	if !passesFilter(all, filter) {
		return nil
	}

	var tagged []taggedEvent
	matchedSet := map[string]bool{}
	keptByStream := map[streamSpec]bool{}
	allowed := make(map[*models.LogEvent]bool, len(all))
	for _, e := range all {
		allowed[e] = true
	}
	for spec, evs := range byStream {
		for _, e := range evs {
			if !allowed[e] {
				continue
			}
			tagged = append(tagged, taggedEvent{spec: spec, event: e})
			matchedSet[spec.name()] = true
			keptByStream[spec] = true
		}
	}
	if len(tagged) == 0 {
		return nil
	}

	events := participatingEvents(tagged)
	matched := make([]string, 0, len(matchedSet))
	for name := range matchedSet {
		matched = append(matched, name)
	}
	sort.Strings(matched)

	completeness := models.Partial
	if len(keptByStream) == totalStreams {
		completeness = models.Complete
	}

	start, end := events[0].Timestamp, events[0].Timestamp
	for _, e := range events {
		if e.Timestamp.Before(start) {
			start = e.Timestamp
		}
		if e.Timestamp.After(end) {
			end = e.Timestamp
		}
	}

	return &models.CorrelatedEvent{
		CorrelationID: corrid.New(),
		Timestamp:     events[0].Timestamp,
		TimeWindow:    models.TimeWindow{Start: start, End: end},
		JoinKey:       joinKeyName,
		JoinValue:     joinVal,
		Events:        events,
		Metadata: models.CorrelationMetadata{
			Completeness:   completeness,
			MatchedStreams: matched,
			TotalStreams:   totalStreams,
		},
	}
}

func primaryJoinKeyName(q *query.ParsedQuery) string {
	if len(q.JoinKeys) > 0 {
		return q.JoinKeys[0]
	}
	return ""
}
