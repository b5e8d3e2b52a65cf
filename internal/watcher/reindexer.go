package watcher

import (
	"context"
	"log/slog"
	"time"
)

// ReindexFunc rebuilds the index. The chat service's Reindex method
// satisfies it through Adapt.
type ReindexFunc func(ctx context.Context) error

// Reindexer runs one rebuild per batch. Batches that arrive while a
// rebuild is running are folded into a single follow-up rebuild.
type Reindexer struct {
	events  <-chan []FileEvent
	reindex ReindexFunc
	logger  *slog.Logger

	// Runs counts completed rebuild attempts; read it only after Run returns.
	Runs int
}

// NewReindexer creates a Reindexer.
func NewReindexer(events <-chan []FileEvent, reindex ReindexFunc, logger *slog.Logger) *Reindexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reindexer{events: events, reindex: reindex, logger: logger}
}

// Adapt turns a method returning a result into a ReindexFunc.
func Adapt[T any](fn func(ctx context.Context) (T, error)) ReindexFunc {
	return func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	}
}

// Run consumes batches until ctx is cancelled or the event channel closes.
func (r *Reindexer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-r.events:
			if !ok {
				return
			}
			changed := len(batch)
			changed += r.drain()
			r.run(ctx, changed, batch)
		}
	}
}

// drain consumes already queued batches and returns their event count.
func (r *Reindexer) drain() int {
	n := 0
	for {
		select {
		case batch, ok := <-r.events:
			if !ok {
				return n
			}
			n += len(batch)
		default:
			return n
		}
	}
}

func (r *Reindexer) run(ctx context.Context, changed int, sample []FileEvent) {
	start := time.Now()
	attrs := []any{slog.Int("changes", changed)}
	if len(sample) > 0 {
		attrs = append(attrs,
			slog.String("first_path", sample[0].Path),
			slog.String("first_op", sample[0].Operation.String()))
	}
	r.logger.Info("reindex_triggered", attrs...)

	err := r.reindex(ctx)
	r.Runs++
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("reindex_failed", slog.String("error", err.Error()))
		return
	}
	r.logger.Info("reindex_completed", slog.Int64("duration_ms", time.Since(start).Milliseconds()))
}
