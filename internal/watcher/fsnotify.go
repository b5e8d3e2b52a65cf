package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches every root recursively and emits debounced batches.
type Watcher struct {
	opts     Options
	roots    []string
	filter   *filter
	debounce *Debouncer
	logger   *slog.Logger

	fs   *fsnotify.Watcher
	poll *poller

	mu   sync.Mutex
	dirs map[string]bool
}

// New creates a watcher. It falls back to polling when fsnotify cannot be
// initialized or opts.ForcePoll is set.
func New(opts Options, logger *slog.Logger) (*Watcher, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.Roots) == 0 {
		return nil, errors.New("watcher: at least one root is required")
	}

	roots := make([]string, 0, len(opts.Roots))
	for _, r := range opts.Roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", r, err)
		}
		roots = append(roots, abs)
	}

	w := &Watcher{
		opts:     opts,
		roots:    roots,
		filter:   newFilter(opts.Extensions, opts.Exclude),
		debounce: NewDebouncer(opts.Debounce, opts.BufferSize, logger),
		logger:   logger,
		dirs:     make(map[string]bool),
	}

	if !opts.ForcePoll {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fs = fsw
			return w, nil
		}
		logger.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	w.poll = newPoller(roots, w.filter, opts.PollInterval, logger)
	return w, nil
}

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fs != nil {
		return "fsnotify"
	}
	return "polling"
}

// Events returns debounced batches. It is closed when Start returns.
func (w *Watcher) Events() <-chan []FileEvent { return w.debounce.Output() }

// Start watches until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	defer w.debounce.Stop()
	w.logger.Info("watcher_started",
		slog.String("mode", w.Mode()),
		slog.Int("roots", len(w.roots)),
		slog.Duration("debounce", w.opts.Debounce))

	if w.poll != nil {
		return w.poll.run(ctx, w.debounce.Add)
	}
	defer w.fs.Close()

	for _, root := range w.roots {
		if err := w.addTree(root, root); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

// addTree adds dir and its non-excluded subdirectories.
func (w *Watcher) addTree(root, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.filter.skipDir(relSlash(root, p)) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			w.logger.Warn("watch_add_failed", slog.String("path", p), slog.String("error", err.Error()))
			return nil
		}
		w.mu.Lock()
		w.dirs[p] = true
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) handle(ev fsnotify.Event) {
	root := w.rootOf(ev.Name)
	if root == "" {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	} else {
		w.mu.Lock()
		isDir = w.dirs[ev.Name]
		if op == OpDelete || op == OpRename {
			delete(w.dirs, ev.Name)
		}
		w.mu.Unlock()
	}

	rel := relSlash(root, ev.Name)
	if op == OpCreate && isDir && !w.filter.skipDir(rel) {
		// Files written before the directory was added produce no events
		// of their own, so a new directory counts as a change.
		_ = w.addTree(root, ev.Name)
		w.debounce.Add(FileEvent{Root: root, Path: rel, Operation: OpCreate, IsDir: true, At: time.Now()})
		return
	}

	op, keep := w.filter.classify(rel, isDir, op)
	if !keep {
		return
	}
	w.debounce.Add(FileEvent{Root: root, Path: rel, Operation: op, IsDir: isDir, At: time.Now()})
}

func (w *Watcher) rootOf(p string) string {
	best := ""
	for _, r := range w.roots {
		if p == r || hasDirPrefix(p, r) {
			if len(r) > len(best) {
				best = r
			}
		}
	}
	return best
}

func hasDirPrefix(p, dir string) bool {
	return len(p) > len(dir) && p[:len(dir)] == dir && os.IsPathSeparator(p[len(dir)])
}

func relSlash(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}
