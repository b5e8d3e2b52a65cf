package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"
)

// poller detects changes by comparing periodic walks of the roots.
type poller struct {
	roots    []string
	filter   *filter
	interval time.Duration
	logger   *slog.Logger
	state    map[string]fileState
}

type fileState struct {
	root    string
	rel     string
	modTime time.Time
	size    int64
}

func newPoller(roots []string, f *filter, interval time.Duration, logger *slog.Logger) *poller {
	return &poller{roots: roots, filter: f, interval: interval, logger: logger}
}

func (p *poller) run(ctx context.Context, emit func(FileEvent)) error {
	p.state = p.walk()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.diff(emit)
		}
	}
}

// diff walks again and emits one event per changed file.
func (p *poller) diff(emit func(FileEvent)) {
	cur := p.walk()
	now := time.Now()
	for key, s := range cur {
		prev, ok := p.state[key]
		switch {
		case !ok:
			emit(p.event(s, OpCreate, now))
		case !prev.modTime.Equal(s.modTime) || prev.size != s.size:
			emit(p.event(s, OpModify, now))
		}
	}
	for key, s := range p.state {
		if _, ok := cur[key]; !ok {
			emit(p.event(s, OpDelete, now))
		}
	}
	p.state = cur
}

func (p *poller) event(s fileState, op Operation, at time.Time) FileEvent {
	if filepath.Base(s.rel) == ".gitignore" {
		op = OpIgnoreChange
	}
	return FileEvent{Root: s.root, Path: s.rel, Operation: op, At: at}
}

func (p *poller) walk() map[string]fileState {
	out := make(map[string]fileState)
	for _, root := range p.roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			rel := relSlash(root, path)
			if d.IsDir() {
				if p.filter.skipDir(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if _, keep := p.filter.classify(rel, false, OpModify); !keep {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			out[path] = fileState{root: root, rel: rel, modTime: info.ModTime(), size: info.Size()}
			return nil
		})
	}
	return out
}
