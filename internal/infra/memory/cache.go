package memory

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"respondeo-service/internal/cache"
)

// Cache is an in-process cache.Backend with per-key expiry. Patterns use glob
// syntax as understood by path.Match.
type Cache struct {
	clock func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	seq     uint64
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
	seq       uint64
}

func NewCache() *Cache {
	return NewCacheWithClock(time.Now)
}

// NewCacheWithClock allows deterministic expiry in tests.
func NewCacheWithClock(now func() time.Time) *Cache {
	return &Cache{
		clock:   now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	now := c.clock()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, cache.ErrMiss
	}
	if entry.expired(now) {
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && current.expired(now) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, cache.ErrMiss
	}
	return append([]byte(nil), entry.value...), nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := cacheEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = c.clock().Add(ttl)
	}
	c.mu.Lock()
	if current, ok := c.entries[key]; ok {
		entry.seq = current.seq
	} else {
		c.seq++
		entry.seq = c.seq
	}
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

// Scan walks live keys in insertion order. The cursor is the sequence number of
// the next key to examine, so deleting keys mid-iteration never skips others.
func (c *Cache) Scan(_ context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error) {
	if count <= 0 {
		count = cache.ScanBatch
	}
	now := c.clock()

	type slot struct {
		key string
		seq uint64
	}
	c.mu.RLock()
	slots := make([]slot, 0, len(c.entries))
	for key, entry := range c.entries {
		if entry.seq >= cursor && !entry.expired(now) {
			slots = append(slots, slot{key: key, seq: entry.seq})
		}
	}
	c.mu.RUnlock()
	sort.Slice(slots, func(i, j int) bool { return slots[i].seq < slots[j].seq })

	var next uint64
	if int64(len(slots)) > count {
		next = slots[count].seq
		slots = slots[:count]
	}

	var matched []string
	for _, s := range slots {
		ok, err := path.Match(pattern, s.key)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			matched = append(matched, s.key)
		}
	}
	return matched, next, nil
}

func (c *Cache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil
}

func (c *Cache) Close() error {
	return nil
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}
