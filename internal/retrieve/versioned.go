package retrieve

import (
	"context"
	"sync"

	"github.com/Aman-CERP/codechat/internal/index"
)

// keepVersions is how many per-snapshot structures stay alive: the current
// snapshot plus the one that in-flight requests may still be reading.
const keepVersions = 2

type versionEntry[T any] struct {
	version string
	value   T
}

// perVersion lazily builds one T per snapshot version. Values are released
// only under the write lock, so a reader holding the read lock never sees
// a released value.
type perVersion[T any] struct {
	mu      sync.RWMutex
	entries []versionEntry[T]
	build   func(ctx context.Context, snap *index.Snapshot) (T, error)
	release func(T)
}

// acquire returns the value for snap's version and a function that must be
// called once the caller is done with it.
func (p *perVersion[T]) acquire(ctx context.Context, snap *index.Snapshot) (T, func(), error) {
	version := snap.Version()
	for {
		p.mu.RLock()
		if v, ok := p.find(version); ok {
			return v, p.mu.RUnlock, nil
		}
		p.mu.RUnlock()

		p.mu.Lock()
		if _, ok := p.find(version); !ok {
			v, err := p.build(ctx, snap)
			if err != nil {
				p.mu.Unlock()
				var zero T
				return zero, func() {}, err
			}
			p.entries = append(p.entries, versionEntry[T]{version: version, value: v})
			for len(p.entries) > keepVersions {
				if p.release != nil {
					p.release(p.entries[0].value)
				}
				p.entries = p.entries[1:]
			}
		}
		p.mu.Unlock()
	}
}

func (p *perVersion[T]) find(version string) (T, bool) {
	for i := len(p.entries) - 1; i >= 0; i-- {
		if p.entries[i].version == version {
			return p.entries[i].value, true
		}
	}
	var zero T
	return zero, false
}

// close releases every value.
func (p *perVersion[T]) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.release != nil {
		for _, e := range p.entries {
			p.release(e.value)
		}
	}
	p.entries = nil
}
