package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func cloneSlice(s []string) []string { return append([]string(nil), s...) }

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"How is classification calculated?", "how is classification calculated"},
		{"  How   is classification\tcalculated ?? ", "how is classification calculated"},
		{"HOW IS CLASSIFICATION CALCULATED!", "how is classification calculated"},
		{"Điểm được tính thế nào？", "điểm được tính thế nào"},
		{"v1.2 config", "v1.2 config"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestNormalize_ComposesUnicode(t *testing.T) {
	decomposed := "\u0110ie\u0302\u0309m"
	composed := "\u0110i\u1ec3m"
	assert.Equal(t, Normalize(composed), Normalize(decomposed))
}

func TestKey_ScopedByVersion(t *testing.T) {
	assert.Equal(t, Key("v1", "What is X?"), Key("v1", "what is x"))
	assert.NotEqual(t, Key("v1", "what is x"), Key("v2", "what is x"))
	assert.NotEqual(t, Key("v1", "what is x"), Key("v1", "what is y"))
}

func TestCache_GetPut(t *testing.T) {
	c, err := New[[]string](Options{Capacity: 10}, cloneSlice)
	require.NoError(t, err)

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Put("k", []string{"a"}, 0)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, v)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, 1, s.Size)
	assert.Equal(t, 10, s.Capacity)
}

func TestCache_CopiesOnReadAndWrite(t *testing.T) {
	c, err := New[[]string](Options{}, cloneSlice)
	require.NoError(t, err)

	// Given a stored value
	original := []string{"a", "b"}
	c.Put("k", original, 0)

	// When the caller mutates its own copy and the one it read back
	original[0] = "mutated"
	got, _ := c.Get("k")
	got[1] = "mutated"

	// Then the cached value is unchanged
	again, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, again)
}

func TestCache_Expiry(t *testing.T) {
	clock := newClock()
	c, err := New[[]string](Options{TTL: time.Hour, Now: clock.Now}, cloneSlice)
	require.NoError(t, err)

	c.Put("k", []string{"a"}, 0)
	clock.Advance(59 * time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok)

	// At exactly the expiry instant the entry is gone
	clock.Advance(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Expired)
}

func TestCache_PerEntryTTL(t *testing.T) {
	clock := newClock()
	c, err := New[[]string](Options{TTL: time.Hour, Now: clock.Now}, cloneSlice)
	require.NoError(t, err)

	c.Put("short", []string{"a"}, time.Minute)
	c.Put("long", []string{"b"}, 0)
	clock.Advance(2 * time.Minute)

	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("long")
	assert.True(t, ok)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New[[]string](Options{Capacity: 2}, cloneSlice)
	require.NoError(t, err)

	c.Put("a", []string{"a"}, 0)
	c.Put("b", []string{"b"}, 0)
	_, _ = c.Get("a")
	c.Put("c", []string{"c"}, 0)

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	_, okC := c.Get("c")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCache_SweepAndPurge(t *testing.T) {
	clock := newClock()
	c, err := New[[]string](Options{TTL: time.Minute, Now: clock.Now}, cloneSlice)
	require.NoError(t, err)

	c.Put("old", []string{"a"}, 0)
	clock.Advance(30 * time.Second)
	c.Put("new", []string{"b"}, 0)
	clock.Advance(45 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCache_RunStopsOnCancel(t *testing.T) {
	c, err := New[[]string](Options{}, cloneSlice)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c, err := New[[]string](Options{Capacity: 50}, cloneSlice)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := Key("v", string(rune('a'+(i+j)%26)))
				c.Put(key, []string{key}, 0)
				if v, ok := c.Get(key); ok {
					assert.Len(t, v, 1)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}

// gatedClock parks the first Now call after arm until release is closed.
type gatedClock struct {
	*fakeClock
	armed   atomic.Bool
	parked  chan struct{}
	release chan struct{}
}

func (c *gatedClock) Now() time.Time {
	if c.armed.CompareAndSwap(true, false) {
		close(c.parked)
		<-c.release
	}
	return c.fakeClock.Now()
}

func TestCache_GetDoesNotWaitForSweep(t *testing.T) {
	// Given: a cache with a live entry and a sweep parked mid-run
	clock := &gatedClock{
		fakeClock: newClock(),
		parked:    make(chan struct{}),
		release:   make(chan struct{}),
	}
	c, err := New[[]string](Options{TTL: time.Hour, Now: clock.Now}, cloneSlice)
	require.NoError(t, err)
	c.Put("k", []string{"a"}, 0)

	clock.armed.Store(true)
	swept := make(chan int, 1)
	go func() { swept <- c.Sweep() }()
	<-clock.parked

	// When: a reader and a writer arrive during the sweep
	done := make(chan struct{})
	go func() {
		defer close(done)
		v, ok := c.Get("k")
		assert.True(t, ok)
		assert.Equal(t, []string{"a"}, v)
		c.Put("other", []string{"b"}, 0)
	}()

	// Then: both complete before the sweep is released
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Get blocked behind Sweep")
	}
	close(clock.release)
	assert.Equal(t, 0, <-swept)
	assert.Equal(t, 2, c.Len())
}

func TestCache_SweepKeepsRefreshedEntry(t *testing.T) {
	clock := newClock()
	c, err := New[[]string](Options{TTL: time.Minute, Now: clock.Now}, cloneSlice)
	require.NoError(t, err)

	c.Put("k", []string{"old"}, 0)
	stale, ok := c.lru.Peek("k")
	require.True(t, ok)
	clock.Advance(2 * time.Minute)

	// A Put lands between the sweep reading the entry and removing it.
	c.Put("k", []string{"new"}, 0)
	assert.False(t, c.removeExpired("k", stale))

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []string{"new"}, v)
	assert.Equal(t, uint64(0), c.Stats().Expired)
}
