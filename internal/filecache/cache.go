// Package filecache remembers where uploaded files live.
//
// DESIGN: A bounded map fileID -> Entry with a TTL:
//   - Get treats entries older than the TTL as absent and drops them
//   - Put prunes every expired entry before inserting (lazy sweep, no goroutine)
//   - capacity is bounded by an LRU so a flood of uploads cannot grow memory
//
// Entries are facts about an immutable upload, so concurrent writers for the
// same id simply race and the last write wins.
package filecache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is the last known location of one uploaded file.
type Entry struct {
	FileID      string    `json:"file_id"`
	FileType    string    `json:"file_type"`
	StorageURL  string    `json:"storage_url"`
	ResponseURL string    `json:"response_url"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Cache is a TTL-bounded, size-bounded file location store. Safe for concurrent use.
type Cache struct {
	entries *lru.Cache[string, Entry]
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache holding at most size entries for ttl each.
func New(ttl time.Duration, size int, opts ...Option) (*Cache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("filecache: ttl must be positive, got %s", ttl)
	}
	entries, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("filecache: %w", err)
	}
	c := &Cache{
		entries: entries,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the entry for fileID if present and not expired.
func (c *Cache) Get(fileID string) (Entry, bool) {
	e, ok := c.entries.Get(fileID)
	if !ok {
		return Entry{}, false
	}
	if c.expired(e) {
		c.entries.Remove(fileID)
		return Entry{}, false
	}
	return e, true
}

// Put stores e under fileID, stamping it with the current time.
// Empty ids are ignored.
func (c *Cache) Put(fileID string, e Entry) {
	if fileID == "" {
		return
	}
	c.prune()
	e.FileID = fileID
	e.UpdatedAt = c.now()
	c.entries.Add(fileID, e)
}

// Len returns the number of stored entries, expired ones included until the next sweep.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func (c *Cache) expired(e Entry) bool {
	return c.now().Sub(e.UpdatedAt) > c.ttl
}

// prune removes every expired entry and returns how many were dropped.
func (c *Cache) prune() int {
	removed := 0
	for _, id := range c.entries.Keys() {
		if e, ok := c.entries.Peek(id); ok && c.expired(e) {
			c.entries.Remove(id)
			removed++
		}
	}
	return removed
}
