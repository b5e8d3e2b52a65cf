// Package cache keeps recent chat answers keyed by normalized question.
package cache

import (
	"context"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"
)

// Defaults.
const (
	DefaultCapacity      = 1000
	DefaultTTL           = time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

// trailingPunct is stripped from the end of questions, including the
// full-width forms used by CJK input methods.
const trailingPunct = "?!.,;:？！。，；："

// Normalize canonicalizes a question for cache lookup: NFC, lower case,
// trimmed, single spaces, no trailing punctuation.
func Normalize(question string) string {
	q := strings.ToLower(norm.NFC.String(question))
	q = strings.Join(strings.Fields(q), " ")
	return strings.TrimSpace(strings.TrimRight(q, trailingPunct))
}

// Key builds a cache key for question within scope. The scope is the index
// version, so answers never outlive the code they were built from.
func Key(scope, question string) string {
	sum := xxh3.HashString128(Normalize(question)).Bytes()
	return scope + ":" + hex.EncodeToString(sum[:])
}

// Options configures a Cache.
type Options struct {
	Capacity int
	TTL      time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
}

type entry[V any] struct {
	value     V
	createdAt time.Time
	expiresAt time.Time
}

// Cache is a capacity-bounded LRU with per-entry expiry. Values pass
// through clone on the way in and out so callers never share them.
// The LRU does its own locking and counters are atomic, so Get and Put
// never wait on a sweep.
type Cache[V any] struct {
	lru   *lru.Cache[string, entry[V]]
	clone func(V) V
	ttl   time.Duration
	cap   int
	now   func() time.Time

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	expired   atomic.Uint64
}

// New creates a cache. clone may be nil for immutable values.
func New[V any](opts Options, clone func(V) V) (*Cache[V], error) {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if clone == nil {
		clone = func(v V) V { return v }
	}
	l, err := lru.New[string, entry[V]](opts.Capacity)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{lru: l, clone: clone, ttl: opts.TTL, cap: opts.Capacity, now: opts.Now}, nil
}

// Get returns a copy of the live value for key. Expired entries are removed
// and reported as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		c.removeExpired(key, e)
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return c.clone(e.value), true
}

// Put stores a copy of value. A non-positive ttl uses the cache default.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now()
	e := entry[V]{value: c.clone(value), createdAt: now, expiresAt: now.Add(ttl)}
	if evicted := c.lru.Add(key, e); evicted {
		c.evictions.Add(1)
	}
}

// removeExpired drops key if it still holds the expired entry seen, so an
// entry refreshed by a concurrent Put survives.
func (c *Cache[V]) removeExpired(key string, seen entry[V]) bool {
	cur, ok := c.lru.Peek(key)
	if !ok || !cur.createdAt.Equal(seen.createdAt) || !cur.expiresAt.Equal(seen.expiresAt) {
		return false
	}
	if c.lru.Remove(key) {
		c.expired.Add(1)
		return true
	}
	return false
}

// Len returns the number of stored entries, expired ones included until
// they are swept.
func (c *Cache[V]) Len() int { return c.lru.Len() }

// Capacity returns the maximum number of entries.
func (c *Cache[V]) Capacity() int { return c.cap }

// Purge drops every entry.
func (c *Cache[V]) Purge() { c.lru.Purge() }

// Stats returns counters and the current size.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Size:      c.lru.Len(),
		Capacity:  c.cap,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Expired:   c.expired.Load(),
	}
}

// Sweep removes expired entries and returns how many were dropped. It works
// on a snapshot of the keys and takes no cache-wide lock.
func (c *Cache[V]) Sweep() int {
	now := c.now()
	removed := 0
	for _, k := range c.lru.Keys() {
		if e, ok := c.lru.Peek(k); ok && !now.Before(e.expiresAt) && c.removeExpired(k, e) {
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (c *Cache[V]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
