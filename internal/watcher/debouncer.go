package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer merges events per path and emits them as one batch once no new
// event has arrived for the window. Merging follows the file's net effect:
// create then modify is a create, create then delete cancels out, delete
// then create is a modify, and anything else keeps the latest operation.
type Debouncer struct {
	window time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]pending
	timer   *time.Timer
	out     chan []FileEvent
	closed  bool
	dropped int
}

type pending struct {
	first Operation
	event FileEvent
}

// NewDebouncer creates a debouncer whose output holds up to buffer batches.
func NewDebouncer(window time.Duration, buffer int, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &Debouncer{
		window:  window,
		logger:  logger,
		pending: make(map[string]pending),
		out:     make(chan []FileEvent, buffer),
	}
}

// Add records e and restarts the quiet period.
func (d *Debouncer) Add(e FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	key := e.Root + "\x00" + e.Path
	if p, ok := d.pending[key]; ok {
		if merged, keep := merge(p, e); keep {
			d.pending[key] = pending{first: p.first, event: merged}
		} else {
			delete(d.pending, key)
		}
	} else {
		d.pending[key] = pending{first: e.Operation, event: e}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func merge(p pending, next FileEvent) (FileEvent, bool) {
	switch {
	case p.first == OpCreate && next.Operation == OpModify:
		merged := next
		merged.Operation = OpCreate
		return merged, true
	case p.first == OpCreate && next.Operation == OpDelete:
		return FileEvent{}, false
	case p.first == OpDelete && next.Operation == OpCreate:
		merged := next
		merged.Operation = OpModify
		return merged, true
	default:
		return next, true
	}
}

// Flush emits pending events immediately.
func (d *Debouncer) Flush() { d.flush() }

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, p := range d.pending {
		batch = append(batch, p.event)
	}
	sort.Slice(batch, func(i, j int) bool {
		if batch[i].Root != batch[j].Root {
			return batch[i].Root < batch[j].Root
		}
		return batch[i].Path < batch[j].Path
	})
	d.pending = make(map[string]pending)

	select {
	case d.out <- batch:
	default:
		d.dropped++
		d.logger.Warn("watcher_batch_dropped",
			slog.Int("batch_size", len(batch)),
			slog.Int("total_dropped", d.dropped))
	}
}

// Output returns emitted batches. It is closed by Stop.
func (d *Debouncer) Output() <-chan []FileEvent { return d.out }

// Stop discards pending events and closes Output. It is idempotent.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}
