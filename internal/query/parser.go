package query

import (
	"strings"
	"time"

	"github.com/platformbuilds/logcorrelate/internal/corrid"
	"github.com/platformbuilds/logcorrelate/internal/correrr"
)

// Parser parses the correlation mini-language (spec §4.3) into a ParsedQuery.
// It is stateless and safe for concurrent use; each Parse call owns its own
// scanner.
type Parser struct{}

// NewParser returns a ready-to-use query Parser.
func NewParser() *Parser { return &Parser{} }

// Parse lexes and parses query text into a validated ParsedQuery, or a
// *correrr.Error of KindQueryParse describing the first failure.
func (p *Parser) Parse(text string) (*ParsedQuery, error) {
	s := newScanner(text)
	q, err := parseQuery(s)
	if err != nil {
		return nil, err
	}
	s.skipWS()
	if !s.eof() {
		line, col := s.where()
		return nil, correrr.QueryParseError(line, col, nil, "unexpected trailing input")
	}
	if err := validate(q); err != nil {
		return nil, err
	}
	return q, nil
}

func parseFail(s *scanner, expected []string, format string, args ...interface{}) error {
	line, col := s.where()
	return correrr.QueryParseError(line, col, expected, format, args...)
}

func parseQuery(s *scanner) (*ParsedQuery, error) {
	first, err := parseStream(s)
	if err != nil {
		return nil, err
	}

	var joins []joinClause
	for {
		s.skipWS()
		if s.eof() || s.peek() == '{' {
			break
		}
		jc, err := parseJoinClause(s)
		if err != nil {
			return nil, err
		}
		joins = append(joins, jc)
	}
	if len(joins) == 0 {
		return nil, parseFail(s, []string{"and", "or", "unless"}, "expected at least one join")
	}

	q := &ParsedQuery{
		LeftStream:  first,
		RightStream: joins[0].stream,
		JoinType:    joins[0].joinType,
		JoinKeys:    joins[0].keys,
		Ignoring:    joins[0].ignoring,
		Temporal:    joins[0].temporal,
		Grouping:    joins[0].grouping,
	}
	q.LabelMappings = joins[0].mappings

	for i := 1; i < len(joins); i++ {
		jc := joins[i]
		if jc.joinType != q.JoinType {
			return nil, parseFail(s, nil, "inconsistent join type %q, expected %q across all streams", jc.joinType, q.JoinType)
		}
		q.AdditionalStreams = append(q.AdditionalStreams, jc.stream)
	}

	if s.peek() == '{' {
		filter, err := parseFilter(s)
		if err != nil {
			return nil, err
		}
		q.Filter = filter
	}

	q.TimeWindow = q.LeftStream.TimeRange
	return q, nil
}

type joinClause struct {
	joinType JoinType
	keys     []string
	ignoring []string
	mappings []LabelMapping
	temporal time.Duration
	grouping *Grouping
	stream   StreamQuery
}

func parseJoinClause(s *scanner) (joinClause, error) {
	var jc joinClause
	switch {
	case s.tryConsume("and"):
		jc.joinType = JoinAnd
	case s.tryConsume("or"):
		jc.joinType = JoinOr
	case s.tryConsume("unless"):
		jc.joinType = JoinUnless
	default:
		return jc, parseFail(s, []string{"and", "or", "unless"}, "expected join operator")
	}

	if !s.tryConsume("on") {
		return jc, parseFail(s, []string{"on"}, "expected 'on' after join operator")
	}
	keysRaw, ok := s.scanBalanced('(', ')')
	if !ok {
		return jc, parseFail(s, []string{"("}, "expected '(' to start join keys")
	}
	keys, mappings, err := parseJoinKeys(s, keysRaw)
	if err != nil {
		return jc, err
	}
	jc.keys = keys
	jc.mappings = mappings

	for {
		s.skipWS()
		switch {
		case s.tryConsume("within"):
			raw, ok := s.scanBalanced('(', ')')
			if !ok {
				return jc, parseFail(s, []string{"("}, "expected '(' after 'within'")
			}
			d, err := corrid.ParseDuration(strings.TrimSpace(raw))
			if err != nil {
				return jc, parseFail(s, nil, "invalid duration in within(): %v", err)
			}
			jc.temporal = d
		case s.tryConsume("ignoring"):
			raw, ok := s.scanBalanced('(', ')')
			if !ok {
				return jc, parseFail(s, []string{"("}, "expected '(' after 'ignoring'")
			}
			jc.ignoring = splitIdentList(raw)
		case s.tryConsume("group_left"):
			jc.grouping = parseGroupModifier(s, GroupLeft)
		case s.tryConsume("group_right"):
			jc.grouping = parseGroupModifier(s, GroupRight)
		default:
			goto doneModifiers
		}
	}
doneModifiers:

	stream, err := parseStream(s)
	if err != nil {
		return jc, err
	}
	jc.stream = stream
	return jc, nil
}

func parseGroupModifier(s *scanner, side GroupSide) *Grouping {
	s.skipWS()
	if s.peek() == '(' {
		raw, ok := s.scanBalanced('(', ')')
		if ok {
			return &Grouping{Side: side, Labels: splitIdentList(raw)}
		}
	}
	return &Grouping{Side: side}
}

// parseJoinKeys splits the comma-separated key list already captured as raw
// text (from inside the outer parens) into plain keys and label-mapping
// pairs ("left=right").
func parseJoinKeys(s *scanner, raw string) ([]string, []LabelMapping, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil, nil
	}
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	var mappings []LabelMapping
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, nil, parseFail(s, nil, "empty join key item")
		}
		if idx := strings.Index(part, "="); idx >= 0 {
			left := strings.TrimSpace(part[:idx])
			right := strings.TrimSpace(part[idx+1:])
			if left == "" || right == "" {
				return nil, nil, parseFail(s, nil, "malformed label mapping %q", part)
			}
			keys = append(keys, left)
			mappings = append(mappings, LabelMapping{Left: left, Right: right})
		} else {
			keys = append(keys, part)
		}
	}
	return keys, mappings, nil
}

func splitIdentList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseStream parses: IDENT '(' selector ')' '[' duration ']'
func parseStream(s *scanner) (StreamQuery, error) {
	var sq StreamQuery
	name, ok := s.scanIdent()
	if !ok {
		return sq, parseFail(s, []string{"<source identifier>"}, "expected source identifier")
	}
	sq.Source = name

	selector, ok := s.scanBalanced('(', ')')
	if !ok {
		return sq, parseFail(s, []string{"("}, "expected '(' after source %q", name)
	}
	sq.Selector = selector

	s.skipWS()
	if s.peek() != '[' {
		return sq, parseFail(s, []string{"["}, "expected '[' to open time range for %q", name)
	}
	durRaw, ok := s.scanBalanced('[', ']')
	if !ok {
		return sq, parseFail(s, []string{"]"}, "unterminated time range for %q", name)
	}
	d, err := corrid.ParseDuration(strings.TrimSpace(durRaw))
	if err != nil {
		return sq, parseFail(s, nil, "invalid duration for %q: %v", name, err)
	}
	sq.TimeRange = d
	return sq, nil
}

// parseFilter parses: '{' matcher (',' matcher)* '}'
func parseFilter(s *scanner) ([]Matcher, error) {
	raw, ok := s.scanBalanced('{', '}')
	if !ok {
		return nil, parseFail(s, []string{"{"}, "expected '{' to start filter")
	}
	inner := newScanner(raw)
	var matchers []Matcher
	for {
		inner.skipWS()
		if inner.eof() {
			break
		}
		m, err := parseMatcher(inner)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
		inner.skipWS()
		if inner.peek() == ',' {
			inner.advance()
			continue
		}
		break
	}
	inner.skipWS()
	if !inner.eof() {
		return nil, parseFail(inner, []string{",", "}"}, "unexpected token in filter")
	}
	if len(matchers) == 0 {
		return nil, parseFail(inner, []string{"<matcher>"}, "filter must contain at least one matcher")
	}
	return matchers, nil
}

func parseMatcher(s *scanner) (Matcher, error) {
	var m Matcher
	label, ok := s.scanIdent()
	if !ok {
		return m, parseFail(s, []string{"<label>"}, "expected label name in matcher")
	}
	m.Label = label

	s.skipWS()
	op, ok := scanMatchOp(s)
	if !ok {
		return m, parseFail(s, []string{"=", "!=", "=~", "!~"}, "expected comparison operator")
	}
	m.Op = op

	val, ok := s.scanQuotedString()
	if !ok {
		return m, parseFail(s, []string{`"`}, "expected quoted string value")
	}
	m.Value = val
	return m, nil
}

func scanMatchOp(s *scanner) (MatchOp, bool) {
	two := string(s.peek()) + string(s.peekAt(1))
	switch two {
	case "=~":
		s.advance()
		s.advance()
		return MatchReEq, true
	case "!~":
		s.advance()
		s.advance()
		return MatchReNe, true
	case "!=":
		s.advance()
		s.advance()
		return MatchNe, true
	}
	if s.peek() == '=' {
		s.advance()
		return MatchEq, true
	}
	return "", false
}

// validate performs the semantic checks described in spec §4.3.
func validate(q *ParsedQuery) error {
	if q.StreamCount() < 2 {
		return correrr.QueryParseError(0, 0, nil, "query must reference at least two streams")
	}
	if len(q.JoinKeys) == 0 && len(q.Ignoring) == 0 {
		return correrr.QueryParseError(0, 0, nil, "join must specify join keys or ignoring(...)")
	}
	aliasSeen := map[string]bool{}
	for _, sq := range q.Streams() {
		if sq.Alias == "" {
			continue
		}
		if aliasSeen[sq.Alias] {
			return correrr.QueryParseError(0, 0, nil, "duplicate alias %q", sq.Alias)
		}
		aliasSeen[sq.Alias] = true
	}
	if q.Grouping != nil && q.StreamCount() != 2 {
		return correrr.QueryParseError(0, 0, nil, "group_left/group_right only apply to two-stream joins")
	}
	return nil
}
