package window

import (
	"testing"
	"time"

	"github.com/platformbuilds/logcorrelate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestWindow(maxEvents int, maxBytes int64) *TimeWindow {
	return New(Config{
		Start:         t0,
		End:           t0.Add(5 * time.Minute),
		LateTolerance: 30 * time.Second,
		MaxEvents:     maxEvents,
		MaxBytes:      maxBytes,
	})
}

func evt(ts time.Time, msg string) *models.LogEvent {
	return &models.LogEvent{Timestamp: ts, Source: "loki", Message: msg}
}

func TestAddEvent_BoundaryAdmission(t *testing.T) {
	w := newTestWindow(0, 0)

	// exactly at windowEnd: admitted
	require.Equal(t, Admitted, w.AddEvent(evt(t0.Add(5*time.Minute), "a"), "k1"))
	// 1ms after windowEnd: rejected
	require.Equal(t, RejectedOutOfRange, w.AddEvent(evt(t0.Add(5*time.Minute+time.Millisecond), "b"), "k1"))
	// exactly at windowStart - lateTolerance: admitted
	require.Equal(t, Admitted, w.AddEvent(evt(t0.Add(-30*time.Second), "c"), "k1"))
	// earlier than that: rejected
	require.Equal(t, RejectedOutOfRange, w.AddEvent(evt(t0.Add(-31*time.Second), "d"), "k1"))
}

func TestAddEvent_MaxEvents(t *testing.T) {
	w := newTestWindow(2, 0)
	require.Equal(t, Admitted, w.AddEvent(evt(t0, "a"), "k1"))
	require.Equal(t, Admitted, w.AddEvent(evt(t0, "b"), "k2"))
	assert.Equal(t, RejectedCapacity, w.AddEvent(evt(t0, "c"), "k3"))
}

func TestGetEventsByJoinKey(t *testing.T) {
	w := newTestWindow(0, 0)
	w.AddEvent(evt(t0, "a"), "k1")
	w.AddEvent(evt(t0.Add(time.Second), "b"), "k1")
	w.AddEvent(evt(t0, "z"), "other")

	got := w.GetEventsByJoinKey("k1")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Message)
	assert.Equal(t, "b", got[1].Message)
	assert.Empty(t, w.GetEventsByJoinKey("missing"))
}

func TestGetEventsByTimeRange(t *testing.T) {
	w := newTestWindow(0, 0)
	w.AddEvent(evt(t0, "a"), "k1")
	w.AddEvent(evt(t0.Add(time.Minute), "b"), "k1")
	w.AddEvent(evt(t0.Add(2*time.Minute), "c"), "k1")

	got := w.GetEventsByTimeRange(t0.Add(30*time.Second), t0.Add(90*time.Second))
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Message)
}

func TestEvictsLRUNotProtectedBucket(t *testing.T) {
	w := newTestWindow(0, 200)
	w.AddEvent(evt(t0, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), "k1")
	time.Sleep(time.Millisecond)
	// writing to k2 should be able to evict k1 if over budget, never k2 itself
	w.AddEvent(evt(t0, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"), "k2")
	assert.NotEmpty(t, w.GetEventsByJoinKey("k2"), "currently-written bucket must never be evicted")
}

func TestRetirement(t *testing.T) {
	w := newTestWindow(0, 0)
	assert.False(t, w.Retired(t0.Add(5*time.Minute)))
	assert.False(t, w.Retired(t0.Add(5*time.Minute+30*time.Second)))
	assert.True(t, w.Retired(t0.Add(5*time.Minute+30*time.Second+time.Millisecond)))
}
