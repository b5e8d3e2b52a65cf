// Package ratelimit admits requests per identity with fixed-window counters
// and a short FIFO wait queue.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Outcome is the result of an admission attempt.
type Outcome int

const (
	// Acquired means a permit was granted immediately.
	Acquired Outcome = iota
	// Queued means the caller waited for the next window and was admitted.
	Queued
	// Rejected means the window and its queue were full.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Acquired:
		return "acquired"
	case Queued:
		return "queued"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Decision describes an admission.
type Decision struct {
	Outcome Outcome
	// RetryAfter is set on rejection: time until the window resets.
	RetryAfter time.Duration
	// Limiter names the limiter that decided a rejection.
	Limiter string
	// Waited is how long a queued caller waited.
	Waited time.Duration

	leases []lease
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool { return d.Outcome != Rejected }

// Release returns the permits held by d to their windows, if those windows
// are still open. Used when a later check rejects the request.
func (d Decision) Release() {
	for _, l := range d.leases {
		l.release()
	}
}

// Limiter admits or rejects requests for an identity. A non-nil error is
// returned only when ctx ends while the caller is queued.
type Limiter interface {
	TryAcquire(ctx context.Context, identity string) (Decision, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Options configures a FixedWindow limiter.
type Options struct {
	Name        string
	PermitLimit int
	Window      time.Duration
	QueueLimit  int
	Clock       Clock
}

// Defaults for the chat endpoint and the global limiter.
var (
	DefaultChat   = Options{Name: "chat", PermitLimit: 10, Window: time.Minute, QueueLimit: 2}
	DefaultGlobal = Options{Name: "global", PermitLimit: 100, Window: time.Minute, QueueLimit: 0}
)

type waiter struct {
	ready    chan struct{}
	admitted bool
}

type bucket struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	queue       []*waiter
}

type lease struct {
	b           *bucket
	windowStart time.Time
}

func (l lease) release() {
	l.b.mu.Lock()
	defer l.b.mu.Unlock()
	if l.b.windowStart.Equal(l.windowStart) && l.b.count > 0 {
		l.b.count--
	}
}

// FixedWindow allows PermitLimit requests per identity per Window. When a
// window is full up to QueueLimit callers wait, oldest first, for the next
// window and are admitted ahead of new arrivals.
type FixedWindow struct {
	opts Options

	mu      sync.RWMutex
	buckets map[string]*bucket
}

// NewFixedWindow creates a limiter. Zero fields fall back to DefaultChat.
func NewFixedWindow(opts Options) *FixedWindow {
	if opts.PermitLimit <= 0 {
		opts.PermitLimit = DefaultChat.PermitLimit
	}
	if opts.Window <= 0 {
		opts.Window = DefaultChat.Window
	}
	if opts.QueueLimit < 0 {
		opts.QueueLimit = 0
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Name == "" {
		opts.Name = "fixed_window"
	}
	return &FixedWindow{opts: opts, buckets: make(map[string]*bucket)}
}

// Name returns the limiter name.
func (f *FixedWindow) Name() string { return f.opts.Name }

// Options returns the effective options.
func (f *FixedWindow) Options() Options { return f.opts }

func (f *FixedWindow) bucket(identity string) *bucket {
	f.mu.RLock()
	b, ok := f.buckets[identity]
	f.mu.RUnlock()
	if ok {
		return b
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok = f.buckets[identity]; !ok {
		b = &bucket{windowStart: f.opts.Clock.Now()}
		f.buckets[identity] = b
	}
	return b
}

// roll advances the window when it has elapsed and admits queued waiters
// into the new one. Callers hold b.mu.
func (f *FixedWindow) roll(b *bucket, now time.Time) {
	elapsed := now.Sub(b.windowStart)
	if elapsed < f.opts.Window {
		return
	}
	b.windowStart = b.windowStart.Add(elapsed - elapsed%f.opts.Window)
	b.count = 0
	for len(b.queue) > 0 && b.count < f.opts.PermitLimit {
		w := b.queue[0]
		b.queue = b.queue[1:]
		w.admitted = true
		b.count++
		close(w.ready)
	}
}

func (f *FixedWindow) lease(b *bucket) lease {
	return lease{b: b, windowStart: b.windowStart}
}

// TryAcquire implements Limiter.
func (f *FixedWindow) TryAcquire(ctx context.Context, identity string) (Decision, error) {
	b := f.bucket(identity)
	clock := f.opts.Clock

	b.mu.Lock()
	now := clock.Now()
	f.roll(b, now)

	if len(b.queue) == 0 && b.count < f.opts.PermitLimit {
		b.count++
		d := Decision{Outcome: Acquired, leases: []lease{f.lease(b)}}
		b.mu.Unlock()
		return d, nil
	}

	if len(b.queue) >= f.opts.QueueLimit {
		d := Decision{
			Outcome:    Rejected,
			RetryAfter: b.windowStart.Add(f.opts.Window).Sub(now),
			Limiter:    f.opts.Name,
		}
		b.mu.Unlock()
		return d, nil
	}

	w := &waiter{ready: make(chan struct{})}
	b.queue = append(b.queue, w)
	wait := b.windowStart.Add(f.opts.Window).Sub(now)
	b.mu.Unlock()

	start := now
	for {
		select {
		case <-w.ready:
			b.mu.Lock()
			d := Decision{Outcome: Queued, Waited: clock.Now().Sub(start), leases: []lease{f.lease(b)}}
			b.mu.Unlock()
			return d, nil

		case <-clock.After(wait):
			b.mu.Lock()
			now = clock.Now()
			f.roll(b, now)
			if w.admitted {
				d := Decision{Outcome: Queued, Waited: now.Sub(start), leases: []lease{f.lease(b)}}
				b.mu.Unlock()
				return d, nil
			}
			wait = b.windowStart.Add(f.opts.Window).Sub(now)
			b.mu.Unlock()

		case <-ctx.Done():
			b.mu.Lock()
			if w.admitted {
				if b.count > 0 {
					b.count--
				}
			} else {
				for i, q := range b.queue {
					if q == w {
						b.queue = append(b.queue[:i], b.queue[i+1:]...)
						break
					}
				}
			}
			b.mu.Unlock()
			return Decision{}, ctx.Err()
		}
	}
}

// wouldReject reports whether identity is currently over the limit, without
// taking a permit.
func (f *FixedWindow) wouldReject(identity string) (bool, time.Duration) {
	f.mu.RLock()
	b, ok := f.buckets[identity]
	f.mu.RUnlock()
	if !ok {
		return false, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := f.opts.Clock.Now()
	f.roll(b, now)
	full := b.count >= f.opts.PermitLimit && len(b.queue) >= f.opts.QueueLimit
	return full, b.windowStart.Add(f.opts.Window).Sub(now)
}

// Sweep drops buckets whose window ended at least one full window ago and
// that have no waiters. It returns the number removed.
func (f *FixedWindow) Sweep() int {
	now := f.opts.Clock.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for id, b := range f.buckets {
		b.mu.Lock()
		idle := len(b.queue) == 0 && now.Sub(b.windowStart) >= 2*f.opts.Window
		b.mu.Unlock()
		if idle {
			delete(f.buckets, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identities.
func (f *FixedWindow) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.buckets)
}

// Run sweeps idle buckets every interval until ctx is done.
func (f *FixedWindow) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = f.opts.Window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Sweep()
		}
	}
}
