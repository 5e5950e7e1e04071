package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/platformbuilds/logcorrelate/internal/adapter"
	"github.com/platformbuilds/logcorrelate/internal/config"
	"github.com/platformbuilds/logcorrelate/internal/correrr"
	"github.com/platformbuilds/logcorrelate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name   string
	events []*models.LogEvent
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) CreateStream(ctx context.Context, selector string, opts adapter.StreamOptions) (adapter.EventStream, error) {
	return adapter.NewSliceStream(f.events), nil
}
func (f *fakeAdapter) ValidateQuery(selector string) bool                    { return true }
func (f *fakeAdapter) AvailableStreams(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeAdapter) Destroy() error                                        { return nil }

// fakeFailingAdapter opens a stream whose first Next call fails with a
// non-EOF adapter error, to exercise Correlate's error propagation path.
type fakeFailingAdapter struct{ name string }

func (f *fakeFailingAdapter) Name() string { return f.name }
func (f *fakeFailingAdapter) CreateStream(ctx context.Context, selector string, opts adapter.StreamOptions) (adapter.EventStream, error) {
	return &failingStream{name: f.name}, nil
}
func (f *fakeFailingAdapter) ValidateQuery(selector string) bool                    { return true }
func (f *fakeFailingAdapter) AvailableStreams(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeFailingAdapter) Destroy() error                                        { return nil }

type failingStream struct{ name string }

func (s *failingStream) Next(ctx context.Context) (*models.LogEvent, error) {
	return nil, correrr.AdapterFailure(s.name, correrr.SubKindRemoteError, fmt.Errorf("connection reset"))
}
func (s *failingStream) Close() error { return nil }

func testConfig() config.Config {
	cfg := *config.Default()
	cfg.Dedup.Enabled = false
	cfg.BufferSize = 16
	cfg.Backpressure.HighWatermark = 16
	cfg.Backpressure.LowWatermark = 4
	cfg.GCInterval = time.Hour
	return cfg
}

var evBase = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestEngine_RegisterAdapter_DuplicateFails(t *testing.T) {
	e := New(testConfig(), nil)
	defer e.Destroy()

	a := &fakeAdapter{name: "loki"}
	require.NoError(t, e.RegisterAdapter(a))
	assert.Error(t, e.RegisterAdapter(a))
}

func TestEngine_Correlate_UnknownAdapterFails(t *testing.T) {
	e := New(testConfig(), nil)
	defer e.Destroy()

	_, err := e.Correlate(context.Background(), `loki({})[5m] and on(request_id) graylog({})[5m]`)
	assert.Error(t, err)
}

func TestEngine_Correlate_TwoStreamEmitsCorrelation(t *testing.T) {
	e := New(testConfig(), nil)
	defer e.Destroy()

	left := &fakeAdapter{name: "loki", events: []*models.LogEvent{
		{Timestamp: evBase, Source: "loki", Message: "left", JoinKeys: map[string]string{"request_id": "r1"}},
	}}
	right := &fakeAdapter{name: "graylog", events: []*models.LogEvent{
		{Timestamp: evBase, Source: "graylog", Message: "right", JoinKeys: map[string]string{"request_id": "r1"}},
	}}
	require.NoError(t, e.RegisterAdapter(left))
	require.NoError(t, e.RegisterAdapter(right))

	var found *models.CorrelatedEvent
	e.OnCorrelationFound(func(ce *models.CorrelatedEvent) { found = ce })

	out, err := e.Correlate(context.Background(), `loki({})[5m] and on(request_id) graylog({})[5m]`)
	require.NoError(t, err)

	select {
	case res, ok := <-out:
		require.True(t, ok)
		require.NoError(t, res.Err)
		require.NotNil(t, res.Correlation)
		assert.Len(t, res.Correlation.Events, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for correlation")
	}
	assert.NotNil(t, found)
}

func TestEngine_Correlate_AdapterFailureEndsWithError(t *testing.T) {
	e := New(testConfig(), nil)
	defer e.Destroy()

	left := &fakeFailingAdapter{name: "loki"}
	right := &fakeAdapter{name: "graylog"}
	require.NoError(t, e.RegisterAdapter(left))
	require.NoError(t, e.RegisterAdapter(right))

	out, err := e.Correlate(context.Background(), `loki({})[5m] and on(request_id) graylog({})[5m]`)
	require.NoError(t, err)

	var gotErr error
	for res := range out {
		if res.Err != nil {
			gotErr = res.Err
		}
	}
	assert.Error(t, gotErr)
}
