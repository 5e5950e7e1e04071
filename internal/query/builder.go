package query

import (
	"fmt"
	"strings"

	"github.com/platformbuilds/logcorrelate/internal/corrid"
)

// String re-serializes a ParsedQuery back into query text. Parsing the
// result must yield an equivalent plan (spec §8 "Parser round-trip").
func (q *ParsedQuery) String() string {
	var b strings.Builder
	writeStream(&b, q.LeftStream)

	b.WriteByte(' ')
	b.WriteString(string(q.JoinType))
	b.WriteString(" on(")
	b.WriteString(joinKeysText(q))
	b.WriteByte(')')

	if q.Temporal > 0 {
		fmt.Fprintf(&b, " within(%s)", corrid.FormatDuration(q.Temporal))
	}
	if len(q.Ignoring) > 0 {
		fmt.Fprintf(&b, " ignoring(%s)", strings.Join(q.Ignoring, ","))
	}
	if q.Grouping != nil {
		b.WriteByte(' ')
		if q.Grouping.Side == GroupLeft {
			b.WriteString("group_left")
		} else {
			b.WriteString("group_right")
		}
		if len(q.Grouping.Labels) > 0 {
			fmt.Fprintf(&b, "(%s)", strings.Join(q.Grouping.Labels, ","))
		}
	}

	b.WriteByte(' ')
	writeStream(&b, q.RightStream)

	for _, extra := range q.AdditionalStreams {
		b.WriteByte(' ')
		b.WriteString(string(q.JoinType))
		b.WriteString(" on(")
		b.WriteString(joinKeysText(q))
		b.WriteByte(')')
		b.WriteByte(' ')
		writeStream(&b, extra)
	}

	if len(q.Filter) > 0 {
		b.WriteString(" {")
		for i, m := range q.Filter {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s%s%q", m.Label, m.Op, m.Value)
		}
		b.WriteByte('}')
	}

	return b.String()
}

func joinKeysText(q *ParsedQuery) string {
	items := make([]string, len(q.JoinKeys))
	for i, k := range q.JoinKeys {
		if m, ok := q.MappingFor(k); ok {
			items[i] = m.Left + "=" + m.Right
		} else {
			items[i] = k
		}
	}
	return strings.Join(items, ",")
}

func writeStream(b *strings.Builder, sq StreamQuery) {
	fmt.Fprintf(b, "%s(%s)[%s]", sq.Source, sq.Selector, corrid.FormatDuration(sq.TimeRange))
}

// Examples returns canned, always-parseable example queries in this
// grammar, for discoverability — the Go-native analogue of the teacher
// pack's CorrelationQueryExamples (spec.md §9 supplement).
func Examples() []string {
	return []string{
		`loki({service="checkout"})[5m] and on(request_id) loki({service="payments"})[5m]`,
		`loki({service="api"})[5m] or on(trace_id) graylog({service="api"})[5m]`,
		`loki({service="api"})[10m] unless on(request_id) loki({service="worker"})[10m]`,
		`loki({service="api"})[5m] and on(request_id) within(5s) loki({service="db"})[5m]`,
		`loki({service="api"})[5m] and on(request_id=trace_id) graylog({service="api"})[5m]`,
		`loki({service="a"})[5m] and on(request_id) loki({service="b"})[5m] {status=~"5.."}`,
	}
}
