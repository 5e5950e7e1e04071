package join

import (
	"testing"

	"github.com/platformbuilds/logcorrelate/internal/models"
	"github.com/platformbuilds/logcorrelate/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeStreamQuery(joinType query.JoinType) *query.ParsedQuery {
	return &query.ParsedQuery{
		LeftStream:        query.StreamQuery{Source: "loki"},
		RightStream:       query.StreamQuery{Source: "graylog"},
		AdditionalStreams: []query.StreamQuery{{Source: "tempo"}},
		JoinType:          joinType,
		JoinKeys:          []string{"request_id"},
	}
}

func TestRunMultiBatch_And_RequiresAllStreams(t *testing.T) {
	q := threeStreamQuery(query.JoinAnd)
	perStream := [][]*models.LogEvent{
		{mkEvent("loki", "r1", base, "a")},
		{mkEvent("graylog", "r1", base, "b")},
		{mkEvent("tempo", "r1", base, "c")},
	}
	results := RunMultiBatch(q, perStream)
	require.Len(t, results, 1)
	assert.Equal(t, models.Complete, results[0].Metadata.Completeness)
	assert.Len(t, results[0].Events, 3)
}

func TestRunMultiBatch_And_SuppressedWhenOneStreamMissing(t *testing.T) {
	q := threeStreamQuery(query.JoinAnd)
	perStream := [][]*models.LogEvent{
		{mkEvent("loki", "r1", base, "a")},
		{mkEvent("graylog", "r1", base, "b")},
		nil,
	}
	assert.Empty(t, RunMultiBatch(q, perStream))
}

func TestRunMultiBatch_Or_EmitsPartialForAnySubset(t *testing.T) {
	q := threeStreamQuery(query.JoinOr)
	perStream := [][]*models.LogEvent{
		{mkEvent("loki", "r1", base, "a")},
		nil,
		nil,
	}
	results := RunMultiBatch(q, perStream)
	require.Len(t, results, 1)
	assert.Equal(t, models.Partial, results[0].Metadata.Completeness)
}

func TestRunMultiBatch_Unless_OnlySingleStreamContributors(t *testing.T) {
	q := threeStreamQuery(query.JoinUnless)
	perStream := [][]*models.LogEvent{
		{mkEvent("loki", "r1", base, "a"), mkEvent("loki", "r2", base, "solo")},
		{mkEvent("graylog", "r1", base, "b")},
		nil,
	}
	results := RunMultiBatch(q, perStream)
	require.Len(t, results, 1)
	assert.Equal(t, "solo", results[0].Events[0].Message)
}

func TestMultiStreamJoiner_Realtime_EmitsOnceAllStreamsContribute(t *testing.T) {
	q := threeStreamQuery(query.JoinAnd)
	j := NewMultiStreamJoiner(q, 0)
	defer j.Close()

	j.Push(0, mkEvent("loki", "r1", base, "a"))
	j.Push(1, mkEvent("graylog", "r1", base, "b"))
	select {
	case <-j.Out():
		t.Fatal("should not emit until all three streams contribute")
	default:
	}
	j.Push(2, mkEvent("tempo", "r1", base, "c"))
	select {
	case ce := <-j.Out():
		assert.Len(t, ce.Events, 3)
	default:
		t.Fatal("expected emission once all streams contributed")
	}
}
