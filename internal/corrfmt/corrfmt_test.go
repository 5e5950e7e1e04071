package corrfmt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/platformbuilds/logcorrelate/internal/models"
)

func sampleEvent() *models.CorrelatedEvent {
	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return &models.CorrelatedEvent{
		CorrelationID: "abc123",
		Timestamp:     t0,
		TimeWindow:    models.TimeWindow{Start: t0, End: t0.Add(2 * time.Second)},
		JoinKey:       "request_id",
		JoinValue:     "r1",
		Metadata: models.CorrelationMetadata{
			Completeness:   models.Complete,
			MatchedStreams: []string{"loki", "graylog"},
			TotalStreams:   2,
		},
		Events: []models.ParticipatingEvent{
			{Source: "loki", Timestamp: t0, Message: "request started"},
			{Source: "graylog", Timestamp: t0.Add(2 * time.Second), Message: "request finished"},
		},
	}
}

func TestSprint_PlainHasNoEscapes(t *testing.T) {
	p := NewPlainPrinter()
	out := p.Sprint(sampleEvent())

	assert.Contains(t, out, "request_id=r1")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "loki")
	assert.Contains(t, out, "request started")
	assert.NotContains(t, out, "\x1b[")
}

func TestSprint_NilEventIsEmpty(t *testing.T) {
	p := NewPlainPrinter()
	assert.Equal(t, "", p.Sprint(nil))
}

func TestSprint_EventsOrderedTimeAscending(t *testing.T) {
	p := NewPlainPrinter()
	out := p.Sprint(sampleEvent())

	startIdx := strings.Index(out, "request started")
	finishIdx := strings.Index(out, "request finished")
	assert.True(t, startIdx < finishIdx)
}

func TestFprint_WritesToBuilder(t *testing.T) {
	p := NewPlainPrinter()
	var b strings.Builder
	err := p.Fprint(&b, sampleEvent())
	assert.NoError(t, err)
	assert.Equal(t, p.Sprint(sampleEvent()), b.String())
}
