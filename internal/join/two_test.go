package join

import (
	"testing"
	"time"

	"github.com/platformbuilds/logcorrelate/internal/models"
	"github.com/platformbuilds/logcorrelate/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func mkEvent(source, reqID string, ts time.Time, msg string) *models.LogEvent {
	return &models.LogEvent{
		Timestamp: ts,
		Source:    source,
		Message:   msg,
		JoinKeys:  map[string]string{"request_id": reqID},
	}
}

func innerJoinQuery() *query.ParsedQuery {
	return &query.ParsedQuery{
		LeftStream:  query.StreamQuery{Source: "loki"},
		RightStream: query.StreamQuery{Source: "graylog"},
		JoinType:    query.JoinAnd,
		JoinKeys:    []string{"request_id"},
	}
}

func TestRunBatch_InnerJoin_MatchesOnBothSides(t *testing.T) {
	q := innerJoinQuery()
	left := []*models.LogEvent{mkEvent("loki", "r1", base, "left-1")}
	right := []*models.LogEvent{mkEvent("graylog", "r1", base.Add(time.Second), "right-1")}

	results := RunBatch(q, left, right)
	require.Len(t, results, 1)
	assert.Equal(t, models.Complete, results[0].Metadata.Completeness)
	assert.Len(t, results[0].Events, 2)
	assert.Equal(t, "left-1", results[0].Events[0].Message)
	assert.Equal(t, "right-1", results[0].Events[1].Message)
}

func TestRunBatch_InnerJoin_UnmatchedSuppressed(t *testing.T) {
	q := innerJoinQuery()
	left := []*models.LogEvent{mkEvent("loki", "r1", base, "left-1")}
	right := []*models.LogEvent{mkEvent("graylog", "r2", base, "right-2")}

	assert.Empty(t, RunBatch(q, left, right))
}

func TestRunBatch_OrJoin_EmitsPartialForUnmatchedLeft(t *testing.T) {
	q := innerJoinQuery()
	q.JoinType = query.JoinOr
	left := []*models.LogEvent{mkEvent("loki", "r1", base, "left-1")}

	results := RunBatch(q, left, nil)
	require.Len(t, results, 1)
	assert.Equal(t, models.Partial, results[0].Metadata.Completeness)
	assert.Len(t, results[0].Events, 1)
}

func TestRunBatch_UnlessJoin_EmitsOnlyUnmatchedLeft(t *testing.T) {
	q := innerJoinQuery()
	q.JoinType = query.JoinUnless
	left := []*models.LogEvent{
		mkEvent("loki", "r1", base, "matched"),
		mkEvent("loki", "r2", base, "unmatched"),
	}
	right := []*models.LogEvent{mkEvent("graylog", "r1", base, "right-1")}

	results := RunBatch(q, left, right)
	require.Len(t, results, 1)
	assert.Equal(t, "unmatched", results[0].Events[0].Message)
}

func TestRunBatch_TemporalSubWindow_SuppressesOutOfRange(t *testing.T) {
	q := innerJoinQuery()
	q.Temporal = time.Second
	left := []*models.LogEvent{mkEvent("loki", "r1", base, "left-1")}
	right := []*models.LogEvent{mkEvent("graylog", "r1", base.Add(10*time.Second), "right-1")}

	assert.Empty(t, RunBatch(q, left, right))
}

func TestRunBatch_Grouping_GroupLeftSplitsPerLeftEvent(t *testing.T) {
	q := innerJoinQuery()
	q.Grouping = &query.Grouping{Side: query.GroupLeft}
	left := []*models.LogEvent{
		mkEvent("loki", "r1", base, "left-1"),
		mkEvent("loki", "r1", base.Add(time.Second), "left-2"),
	}
	right := []*models.LogEvent{mkEvent("graylog", "r1", base, "right-1")}

	results := RunBatch(q, left, right)
	require.Len(t, results, 2)
	for _, ce := range results {
		assert.Len(t, ce.Events, 2)
	}
}

func TestRunBatch_Filter_SuppressesWhenNoEventMatches(t *testing.T) {
	q := innerJoinQuery()
	q.Filter = []query.Matcher{{Label: "env", Op: query.MatchEq, Value: "prod"}}
	left := []*models.LogEvent{mkEvent("loki", "r1", base, "left-1")}
	right := []*models.LogEvent{mkEvent("graylog", "r1", base, "right-1")}

	assert.Empty(t, RunBatch(q, left, right))
}

func TestTwoStreamJoiner_RealtimePush_EmitsOnMatch(t *testing.T) {
	q := innerJoinQuery()
	j := NewTwoStreamJoiner(q, time.Minute)
	defer j.Close()

	j.Push(Left, mkEvent("loki", "r1", base, "left-1"))
	select {
	case <-j.Out():
		t.Fatal("should not emit before right side arrives")
	default:
	}

	j.Push(Right, mkEvent("graylog", "r1", base, "right-1"))
	select {
	case ce := <-j.Out():
		assert.Len(t, ce.Events, 2)
	default:
		t.Fatal("expected a correlation after both sides arrived")
	}
}

func TestTwoStreamJoiner_Push_UnlessSuppressesMatchedValueEntirely(t *testing.T) {
	q := innerJoinQuery()
	q.JoinType = query.JoinUnless
	j := NewTwoStreamJoiner(q, time.Minute)
	defer j.Close()

	j.Push(Left, mkEvent("loki", "r3", base, "left-r3"))
	j.Push(Left, mkEvent("loki", "r4", base, "left-r4"))
	j.Push(Right, mkEvent("graylog", "r4", base, "right-r4"))

	select {
	case ce := <-j.Out():
		t.Fatalf("unless must never emit on arrival, got %+v", ce)
	default:
	}

	j.Retire()

	select {
	case ce := <-j.Out():
		assert.Equal(t, models.Partial, ce.Metadata.Completeness)
		assert.Equal(t, "left-r3", ce.Events[0].Message)
	default:
		t.Fatal("expected exactly one partial correlation for the unmatched r3 value")
	}

	select {
	case ce := <-j.Out():
		t.Fatalf("r4 was matched on both sides, must never be emitted; got %+v", ce)
	default:
	}
}

func TestTwoStreamJoiner_Retire_UnlessEmitsUnmatchedLeft(t *testing.T) {
	q := innerJoinQuery()
	q.JoinType = query.JoinUnless
	j := NewTwoStreamJoiner(q, time.Minute)
	defer j.Close()

	j.Push(Left, mkEvent("loki", "r1", base, "left-1"))
	j.Retire()

	select {
	case ce := <-j.Out():
		assert.Equal(t, models.Partial, ce.Metadata.Completeness)
	default:
		t.Fatal("expected a partial correlation at retirement")
	}
}
