package index

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Holder owns the current snapshot. Reads are lock free; rebuilds are
// serialized and publish the new snapshot with a single atomic store.
type Holder struct {
	current atomic.Pointer[Snapshot]
	builder *Builder
	logger  *slog.Logger

	rebuildMu sync.Mutex
	listeners []func(old, cur *Snapshot)
}

// NewHolder creates a holder that starts with an empty snapshot.
func NewHolder(builder *Builder, logger *slog.Logger) *Holder {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Holder{builder: builder, logger: logger}
	h.current.Store(Empty())
	return h
}

// Current returns the published snapshot. Never nil.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// OnSwap registers fn to run after each publish. Register listeners before
// the holder is shared.
func (h *Holder) OnSwap(fn func(old, cur *Snapshot)) {
	h.listeners = append(h.listeners, fn)
}

// Swap publishes snap and returns the previous snapshot.
func (h *Holder) Swap(snap *Snapshot) *Snapshot {
	if snap == nil {
		snap = Empty()
	}
	old := h.current.Swap(snap)
	for _, fn := range h.listeners {
		fn(old, snap)
	}
	return old
}

// Rebuild builds a fresh snapshot and publishes it. On error the current
// snapshot stays in place.
func (h *Holder) Rebuild(ctx context.Context) (*Snapshot, BuildStats, error) {
	h.rebuildMu.Lock()
	defer h.rebuildMu.Unlock()

	snap, stats, err := h.builder.Build(ctx)
	if err != nil {
		h.logger.Warn("reindex_failed", slog.String("error", err.Error()))
		return h.Current(), stats, err
	}

	old := h.Swap(snap)
	if old.Version() != snap.Version() {
		h.logger.Info("index_swapped",
			slog.String("old_version", old.Version()),
			slog.String("new_version", snap.Version()),
			slog.Int("chunks", snap.Len()))
	}
	return snap, stats, nil
}
