package perfmon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordEvent_TracksCountAndPercentiles(t *testing.T) {
	m := NewMonitor(Thresholds{})
	for i := 1; i <= 10; i++ {
		m.RecordEvent(time.Duration(i) * time.Millisecond)
	}
	snap := m.Snapshot()
	assert.Equal(t, uint64(10), snap.EventsProcessed)
	assert.True(t, snap.P50 > 0)
	assert.True(t, snap.P99 >= snap.P50)
}

func TestThresholds_FiresOnHighLatency(t *testing.T) {
	m := NewMonitor(Thresholds{MaxMeanLatency: time.Millisecond})
	var got []ThresholdEvent
	m.Subscribe(func(ev ThresholdEvent) { got = append(got, ev) })

	m.RecordEvent(50 * time.Millisecond)
	assert.NotEmpty(t, got)
	assert.Equal(t, "latency", got[0].Kind)
}

func TestObserveHeap_FiresOnBudgetExceeded(t *testing.T) {
	m := NewMonitor(Thresholds{MaxHeapMB: 100})
	var got []ThresholdEvent
	m.Subscribe(func(ev ThresholdEvent) { got = append(got, ev) })

	m.ObserveHeap(50)
	assert.Empty(t, got)
	m.ObserveHeap(150)
	assertHeapEventFired(t, got)
}

func assertHeapEventFired(t *testing.T, got []ThresholdEvent) {
	t.Helper()
	assert.NotEmpty(t, got)
	assert.Equal(t, "heap", got[len(got)-1].Kind)
}
