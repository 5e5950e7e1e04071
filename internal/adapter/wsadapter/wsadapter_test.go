package wsadapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/platformbuilds/logcorrelate/internal/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func echoOneEventServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var sub subscribeFrame
		require.NoError(t, conn.ReadJSON(&sub))

		require.NoError(t, conn.WriteJSON(wireEvent{
			Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Message:   "hello request_id=r1",
		}))
		time.Sleep(50 * time.Millisecond)
	}))
}

func TestCreateStream_DecodesOneEvent(t *testing.T) {
	srv := echoOneEventServer(t)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	a := New(Config{SourceName: "pushlog", URL: wsURL}, nil)
	defer a.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream, err := a.CreateStream(ctx, `{service="x"}`, adapter.StreamOptions{}.WithDefaults())
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pushlog", ev.Source)
	assert.Equal(t, "r1", ev.JoinKeys["request_id"])
}

func TestAdapter_NameAndValidateQuery(t *testing.T) {
	a := New(Config{SourceName: "pushlog", URL: "ws://example.invalid"}, nil)
	assert.Equal(t, "pushlog", a.Name())
	assert.True(t, a.ValidateQuery("anything"))
}

func TestAdapter_DestroyRejectsNewStreams(t *testing.T) {
	a := New(Config{SourceName: "pushlog", URL: "ws://example.invalid"}, nil)
	require.NoError(t, a.Destroy())
	_, err := a.CreateStream(context.Background(), "{}", adapter.StreamOptions{}.WithDefaults())
	assert.Error(t, err)
}
