package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"care-call-scheduler/internal/calls"
)

// HistoryCache holds the turns of a live call keyed by provider call
// handle, so each speech webhook can be answered with full context without
// reloading the record.
type HistoryCache interface {
	Load(ctx context.Context, handle string) ([]calls.TranscriptTurn, error)
	Append(ctx context.Context, handle string, turns ...calls.TranscriptTurn) error
	Evict(ctx context.Context, handle string) error
}

// RedisCache stores history as a capped Redis list with a sliding TTL.
type RedisCache struct {
	client   redis.Cmdable
	prefix   string
	ttl      time.Duration
	maxTurns int64
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisCache{client: client, prefix: "conversation:", ttl: ttl, maxTurns: 200}
}

func (c *RedisCache) key(handle string) string { return c.prefix + handle }

func (c *RedisCache) Load(ctx context.Context, handle string) ([]calls.TranscriptTurn, error) {
	raw, err := c.client.LRange(ctx, c.key(handle), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", handle, err)
	}
	out := make([]calls.TranscriptTurn, 0, len(raw))
	for _, s := range raw {
		var t calls.TranscriptTurn
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("decode conversation turn: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *RedisCache) Append(ctx context.Context, handle string, turns ...calls.TranscriptTurn) error {
	if len(turns) == 0 {
		return nil
	}
	vals := make([]any, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode conversation turn: %w", err)
		}
		vals = append(vals, b)
	}

	key := c.key(handle)
	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, key, vals...)
	pipe.LTrim(ctx, key, -c.maxTurns, -1)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append conversation %s: %w", handle, err)
	}
	return nil
}

func (c *RedisCache) Evict(ctx context.Context, handle string) error {
	if err := c.client.Del(ctx, c.key(handle)).Err(); err != nil {
		return fmt.Errorf("evict conversation %s: %w", handle, err)
	}
	return nil
}

// MemoryCache is an in-process HistoryCache with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   func() time.Time
}

type memoryEntry struct {
	turns   []calls.TranscriptTurn
	expires time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &MemoryCache{entries: map[string]memoryEntry{}, ttl: ttl, clock: time.Now}
}

func (c *MemoryCache) Load(ctx context.Context, handle string) ([]calls.TranscriptTurn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[handle]
	if !ok {
		return nil, nil
	}
	if c.clock().After(e.expires) {
		delete(c.entries, handle)
		return nil, nil
	}
	return append([]calls.TranscriptTurn(nil), e.turns...), nil
}

func (c *MemoryCache) Append(ctx context.Context, handle string, turns ...calls.TranscriptTurn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	e := c.entries[handle]
	if now.After(e.expires) {
		e.turns = nil
	}
	e.turns = append(e.turns, turns...)
	e.expires = now.Add(c.ttl)
	c.entries[handle] = e
	return nil
}

func (c *MemoryCache) Evict(ctx context.Context, handle string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, handle)
	return nil
}
