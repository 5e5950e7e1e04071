// Package dedup implements C5: content-hash based suppression of duplicate
// events observed across overlapping adapter queries or redelivered
// messages. The default backend is an in-process, TTL-bounded LRU cache;
// an optional Redis-backed backend (grounded on the same SetNX pattern
// used for distributed locks against Valkey/Redis) lets multiple engine
// instances share one dedup horizon.
package dedup

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platformbuilds/logcorrelate/internal/models"
)

// Deduplicator decides whether an event's content hash has already been
// admitted within the configured TTL. Seen marks the hash as observed as a
// side effect, atomically with the check.
type Deduplicator interface {
	// Seen reports whether hash was already observed inside the dedup
	// horizon, recording it as observed if not.
	Seen(ctx context.Context, hash string) (bool, error)
	Close() error
}

// Hash computes a stable content hash for e: source, stream, timestamp,
// message, and sorted labels. Two events with identical content hash the
// same regardless of label map iteration order.
func Hash(e *models.LogEvent) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s", e.Source, e.Stream, e.Timestamp.UnixNano(), e.Message)

	keys := make([]string, 0, len(e.Labels))
	for k := range e.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%s", k, e.Labels[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// entry is one LRU cache slot.
type entry struct {
	hash    string
	expires time.Time
}

// LRUCache is an in-process Deduplicator bounded by both entry count and
// TTL. Safe for concurrent use.
type LRUCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	maxCache int
	order    *list.List
	index    map[string]*list.Element
}

// NewLRU creates an in-process Deduplicator holding at most maxCache
// entries, each considered seen for ttl after admission.
func NewLRU(maxCache int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		ttl:      ttl,
		maxCache: maxCache,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (c *LRUCache) Seen(_ context.Context, hash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if el, ok := c.index[hash]; ok {
		e := el.Value.(*entry)
		if e.expires.After(now) {
			c.order.MoveToFront(el)
			return true, nil
		}
		// expired: treat as new, refresh in place
		c.order.Remove(el)
		delete(c.index, hash)
	}

	c.order.PushFront(&entry{hash: hash, expires: now.Add(c.ttl)})
	c.index[hash] = c.order.Front()

	for c.maxCache > 0 && c.order.Len() > c.maxCache {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*entry).hash)
	}
	return false, nil
}

func (c *LRUCache) Close() error { return nil }

// RedisCache is a Deduplicator backed by Redis/Valkey SETNX, so the dedup
// horizon can be shared across engine instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis dials addr and returns a Deduplicator whose entries expire after
// ttl, shared by any process pointed at the same Redis keyspace.
func NewRedis(addr string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("dedup: connect to redis: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Seen(ctx context.Context, hash string) (bool, error) {
	key := "dedup:" + hash
	set, err := c.client.SetNX(ctx, key, 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: redis setnx: %w", err)
	}
	return !set, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
