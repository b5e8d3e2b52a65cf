package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timer struct {
	at time.Time
	ch chan time.Time
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []timer
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.timers = append(c.timers, timer{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var pending []timer
	for _, t := range c.timers {
		if !t.at.After(c.now) {
			t.ch <- c.now
		} else {
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func waitPending(t *testing.T, c *fakeClock, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Pending() == n }, time.Second, time.Millisecond)
}

type result struct {
	d   Decision
	err error
}

func acquireAsync(ctx context.Context, f Limiter, id string) <-chan result {
	out := make(chan result, 1)
	go func() {
		d, err := f.TryAcquire(ctx, id)
		out <- result{d, err}
	}()
	return out
}

func TestFixedWindow_RejectsOverLimit(t *testing.T) {
	clock := newClock()
	f := NewFixedWindow(Options{Name: "chat", PermitLimit: 2, Window: time.Minute, Clock: clock})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := f.TryAcquire(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, Acquired, d.Outcome)
	}

	clock.Advance(15 * time.Second)
	d, err := f.TryAcquire(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Rejected, d.Outcome)
	assert.False(t, d.Allowed())
	assert.Equal(t, 45*time.Second, d.RetryAfter)
	assert.Equal(t, "chat", d.Limiter)

	// Next window admits again
	clock.Advance(45 * time.Second)
	d, err = f.TryAcquire(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Acquired, d.Outcome)
}

func TestFixedWindow_IdentitiesAreIndependent(t *testing.T) {
	f := NewFixedWindow(Options{PermitLimit: 1, Window: time.Minute, Clock: newClock()})
	ctx := context.Background()

	d, _ := f.TryAcquire(ctx, "alice")
	assert.Equal(t, Acquired, d.Outcome)
	d, _ = f.TryAcquire(ctx, "bob")
	assert.Equal(t, Acquired, d.Outcome)
	d, _ = f.TryAcquire(ctx, "alice")
	assert.Equal(t, Rejected, d.Outcome)
	assert.Equal(t, 2, f.Len())
}

func TestFixedWindow_QueuesThenAdmits(t *testing.T) {
	clock := newClock()
	f := NewFixedWindow(Options{PermitLimit: 1, Window: time.Minute, QueueLimit: 1, Clock: clock})
	ctx := context.Background()

	// Given a full window
	d, err := f.TryAcquire(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, Acquired, d.Outcome)

	// When a second caller arrives it waits, and a third is rejected
	queued := acquireAsync(ctx, f, "alice")
	waitPending(t, clock, 1)
	d, err = f.TryAcquire(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Rejected, d.Outcome)

	// Then the queued caller is admitted when the window rolls over
	clock.Advance(time.Minute)
	select {
	case r := <-queued:
		require.NoError(t, r.err)
		assert.Equal(t, Queued, r.d.Outcome)
		assert.Equal(t, time.Minute, r.d.Waited)
	case <-time.After(time.Second):
		t.Fatal("queued caller was not admitted")
	}

	// And its permit counts toward the new window
	b := f.buckets["alice"]
	b.mu.Lock()
	assert.Equal(t, 1, b.count)
	b.mu.Unlock()
}

func TestFixedWindow_QueueIsFIFO(t *testing.T) {
	clock := newClock()
	f := NewFixedWindow(Options{PermitLimit: 1, Window: time.Minute, QueueLimit: 2, Clock: clock})
	ctx := context.Background()

	_, err := f.TryAcquire(ctx, "alice")
	require.NoError(t, err)

	first := acquireAsync(ctx, f, "alice")
	waitPending(t, clock, 1)
	second := acquireAsync(ctx, f, "alice")
	waitPending(t, clock, 2)

	clock.Advance(time.Minute)
	select {
	case r := <-first:
		assert.Equal(t, Queued, r.d.Outcome)
	case <-time.After(time.Second):
		t.Fatal("oldest waiter was not admitted first")
	}
	select {
	case <-second:
		t.Fatal("second waiter admitted in the same window")
	case <-time.After(20 * time.Millisecond):
	}

	waitPending(t, clock, 1)
	clock.Advance(time.Minute)
	select {
	case r := <-second:
		assert.Equal(t, Queued, r.d.Outcome)
	case <-time.After(time.Second):
		t.Fatal("second waiter was not admitted")
	}
}

func TestFixedWindow_CancelledWaiterLeavesQueue(t *testing.T) {
	clock := newClock()
	f := NewFixedWindow(Options{PermitLimit: 1, Window: time.Minute, QueueLimit: 1, Clock: clock})

	_, err := f.TryAcquire(context.Background(), "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	queued := acquireAsync(ctx, f, "alice")
	waitPending(t, clock, 1)
	cancel()

	r := <-queued
	assert.ErrorIs(t, r.err, context.Canceled)

	b := f.buckets["alice"]
	b.mu.Lock()
	assert.Empty(t, b.queue)
	b.mu.Unlock()
}

func TestFixedWindow_Sweep(t *testing.T) {
	clock := newClock()
	f := NewFixedWindow(Options{PermitLimit: 1, Window: time.Minute, Clock: clock})

	_, _ = f.TryAcquire(context.Background(), "alice")
	clock.Advance(90 * time.Second)
	_, _ = f.TryAcquire(context.Background(), "bob")
	clock.Advance(45 * time.Second)

	assert.Equal(t, 1, f.Sweep())
	assert.Equal(t, 1, f.Len())
}

func TestChain_StricterLimiterWins(t *testing.T) {
	clock := newClock()
	chat := NewFixedWindow(Options{Name: "chat", PermitLimit: 1, Window: time.Minute, Clock: clock})
	global := NewFixedWindow(Options{Name: "global", PermitLimit: 100, Window: time.Minute, Clock: clock})
	c := NewChain(chat, global)
	ctx := context.Background()

	d, err := c.TryAcquire(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Acquired, d.Outcome)

	d, err = c.TryAcquire(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Rejected, d.Outcome)
	assert.Equal(t, "chat", d.Limiter)
	assert.Equal(t, time.Minute, d.RetryAfter)
}

func TestChain_RejectionReleasesEarlierPermits(t *testing.T) {
	clock := newClock()
	chat := NewFixedWindow(Options{Name: "chat", PermitLimit: 5, Window: time.Minute, Clock: clock})
	global := NewFixedWindow(Options{Name: "global", PermitLimit: 1, Window: time.Minute, Clock: clock})
	c := NewChain(chat, global)
	ctx := context.Background()

	_, err := c.TryAcquire(ctx, "alice")
	require.NoError(t, err)
	d, err := c.TryAcquire(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, Rejected, d.Outcome)
	assert.Equal(t, "global", d.Limiter)

	b := chat.buckets["alice"]
	b.mu.Lock()
	assert.Equal(t, 1, b.count)
	b.mu.Unlock()
}

func TestChain_RetryAfterIsLongest(t *testing.T) {
	clock := newClock()
	chat := NewFixedWindow(Options{Name: "chat", PermitLimit: 1, Window: time.Minute, Clock: clock})
	global := NewFixedWindow(Options{Name: "global", PermitLimit: 1, Window: 10 * time.Minute, Clock: clock})
	c := NewChain(chat, global)
	ctx := context.Background()

	_, err := c.TryAcquire(ctx, "alice")
	require.NoError(t, err)
	d, err := c.TryAcquire(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, Rejected, d.Outcome)
	assert.Equal(t, 10*time.Minute, d.RetryAfter)
}

func TestFixedWindow_ConcurrentCallersNeverExceedLimit(t *testing.T) {
	f := NewFixedWindow(Options{PermitLimit: 10, Window: time.Hour, Clock: newClock()})
	ctx := context.Background()

	var mu sync.Mutex
	admitted := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := f.TryAcquire(ctx, "alice")
			if err == nil && d.Outcome == Acquired {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, admitted)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "acquired", Acquired.String())
	assert.Equal(t, "queued", Queued.String())
	assert.Equal(t, "rejected", Rejected.String())
}
