package relevance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long link metadata stays cached.
const DefaultCacheTTL = 24 * time.Hour

// Cache stores link metadata by URL.
type Cache interface {
	Get(ctx context.Context, url string) (Metadata, bool, error)
	Set(ctx context.Context, url string, md Metadata) error
}

// MemoryCache is an in-process Cache with per-entry expiry.
type MemoryCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]memoryEntry
	now   func() time.Time
}

type memoryEntry struct {
	md        Metadata
	expiresAt time.Time
}

// NewMemoryCache creates a MemoryCache. A zero ttl uses DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{ttl: ttl, items: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, url string) (Metadata, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[url]
	if !ok || !c.now().Before(e.expiresAt) {
		return Metadata{}, false, nil
	}
	return e.md, true, nil
}

func (c *MemoryCache) Set(_ context.Context, url string, md Metadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[url] = memoryEntry{md: md, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// RedisCache stores metadata as JSON strings in Redis.
type RedisCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a RedisCache on an existing client.
func NewRedisCache(client goredis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "recast:linkmeta:"}
}

// OpenRedisCache parses a redis:// URL and connects.
func OpenRedisCache(rawURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisCache(goredis.NewClient(opts), ttl), nil
}

func (c *RedisCache) Get(ctx context.Context, url string) (Metadata, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+url).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("redis get: %w", err)
	}
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return Metadata{}, false, fmt.Errorf("decode cached metadata: %w", err)
	}
	return md, true, nil
}

func (c *RedisCache) Set(ctx context.Context, url string, md Metadata) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+url, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
