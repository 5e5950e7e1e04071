package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/platformbuilds/logcorrelate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_StableAcrossLabelOrder(t *testing.T) {
	e1 := &models.LogEvent{Source: "loki", Message: "x", Labels: map[string]string{"a": "1", "b": "2"}}
	e2 := &models.LogEvent{Source: "loki", Message: "x", Labels: map[string]string{"b": "2", "a": "1"}}
	assert.Equal(t, Hash(e1), Hash(e2))
}

func TestHash_DiffersOnContent(t *testing.T) {
	e1 := &models.LogEvent{Source: "loki", Message: "x"}
	e2 := &models.LogEvent{Source: "loki", Message: "y"}
	assert.NotEqual(t, Hash(e1), Hash(e2))
}

func TestLRUCache_SeenTwiceWithinTTL(t *testing.T) {
	c := NewLRU(10, time.Minute)
	ctx := context.Background()

	seen, err := c.Seen(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = c.Seen(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestLRUCache_ExpiresAfterTTL(t *testing.T) {
	c := NewLRU(10, 10*time.Millisecond)
	ctx := context.Background()

	seen, _ := c.Seen(ctx, "h1")
	assert.False(t, seen)
	time.Sleep(20 * time.Millisecond)
	seen, _ = c.Seen(ctx, "h1")
	assert.False(t, seen, "expired entry must be treated as new")
}

func TestLRUCache_EvictsOldestOverCapacity(t *testing.T) {
	c := NewLRU(2, time.Minute)
	ctx := context.Background()

	c.Seen(ctx, "h1")
	c.Seen(ctx, "h2")
	c.Seen(ctx, "h3") // evicts h1

	seen, _ := c.Seen(ctx, "h1")
	assert.False(t, seen, "h1 should have been evicted")
}
