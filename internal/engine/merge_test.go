package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platformbuilds/logcorrelate/internal/models"
)

func sampleCorrelation(completeness models.Completeness) *models.CorrelatedEvent {
	return &models.CorrelatedEvent{
		JoinKey:   "request_id",
		JoinValue: "r1",
		Metadata: models.CorrelationMetadata{
			Completeness:   completeness,
			MatchedStreams: []string{"loki", "graylog"},
			TotalStreams:   2,
		},
	}
}

func TestCorrelationMerger_DropsExactRepeat(t *testing.T) {
	m := newCorrelationMerger(0)
	ce := sampleCorrelation(models.Complete)

	assert.True(t, m.Admit(ce))
	assert.False(t, m.Admit(ce))
}

func TestCorrelationMerger_AllowsDistinctCompleteness(t *testing.T) {
	m := newCorrelationMerger(0)

	assert.True(t, m.Admit(sampleCorrelation(models.Partial)))
	assert.True(t, m.Admit(sampleCorrelation(models.Complete)))
}

func TestCorrelationMerger_EvictsOldestOverCapacity(t *testing.T) {
	m := newCorrelationMerger(1)

	first := sampleCorrelation(models.Partial)
	second := &models.CorrelatedEvent{
		JoinKey:   "request_id",
		JoinValue: "r2",
		Metadata: models.CorrelationMetadata{
			Completeness:   models.Complete,
			MatchedStreams: []string{"loki", "graylog"},
			TotalStreams:   2,
		},
	}

	assert.True(t, m.Admit(first))
	assert.True(t, m.Admit(second))
	// first's signature was evicted once capacity (1) was exceeded by second.
	assert.True(t, m.Admit(first))
}
