package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// LocalCache is an in-process LRU with per-entry expiry. It is not shared between
// instances.
type LocalCache struct {
	entries    *lru.Cache[string, localEntry]
	defaultTTL time.Duration
	now        func() time.Time
}

func NewLocalCache(size int, defaultTTL time.Duration) (*LocalCache, error) {
	entries, err := lru.New[string, localEntry](size)
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	if defaultTTL <= 0 {
		defaultTTL = defaultCacheTTL
	}
	return &LocalCache{entries: entries, defaultTTL: defaultTTL, now: time.Now}, nil
}

func (c *LocalCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *LocalCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries.Add(key, localEntry{value: stored, expiresAt: c.now().Add(ttl)})
	return nil
}

func (c *LocalCache) ClearByPrefix(_ context.Context, prefix string) error {
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
	return nil
}

func (c *LocalCache) Clear(_ context.Context) error {
	c.entries.Purge()
	return nil
}

func (c *LocalCache) Len() int {
	return c.entries.Len()
}
