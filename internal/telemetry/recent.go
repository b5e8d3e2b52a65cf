package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/Aman-CERP/codechat/internal/chat"
)

// Ring is a fixed-capacity FIFO buffer that overwrites its oldest entry.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	size  int
}

// NewRing creates a ring holding up to capacity items (default 100).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Add appends item, evicting the oldest when full.
func (r *Ring[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

// Items returns the buffered items, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, r.size)
	if r.size < len(r.items) {
		copy(out, r.items[:r.size])
		return out
	}
	n := copy(out, r.items[r.head:])
	copy(out[n:], r.items[:r.head])
	return out
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Recent keeps the last events in memory with hashed identities.
type Recent struct {
	ring *Ring[chat.Event]
}

// NewRecent creates a Recent recorder.
func NewRecent(capacity int) *Recent {
	return &Recent{ring: NewRing[chat.Event](capacity)}
}

// Record implements chat.Recorder.
func (r *Recent) Record(_ context.Context, e chat.Event) error {
	e.Identity = HashIdentity(e.Identity)
	r.ring.Add(e)
	return nil
}

// Events returns buffered events, newest first.
func (r *Recent) Events() []chat.Event {
	items := r.ring.Items()
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

// Fanout sends each event to every recorder and joins their errors.
type Fanout []chat.Recorder

// Record implements chat.Recorder.
func (f Fanout) Record(ctx context.Context, e chat.Event) error {
	var errs []error
	for _, r := range f {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
