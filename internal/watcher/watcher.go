package watcher

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/codechat/internal/scanner"
)

// Operation is a file system change kind.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
	// OpIgnoreChange is a .gitignore edit; it can change the indexed set
	// without touching any indexed file.
	OpIgnoreChange
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	case OpIgnoreChange:
		return "ignore_change"
	default:
		return "unknown"
	}
}

// FileEvent is one change, with Path slash separated and relative to Root.
type FileEvent struct {
	Root      string
	Path      string
	Operation Operation
	IsDir     bool
	At        time.Time
}

// Options configures a Watcher.
type Options struct {
	Roots      []string
	Extensions []string
	Exclude    []string
	// Debounce is the quiet period before a batch is emitted.
	Debounce time.Duration
	// PollInterval is used when fsnotify is unavailable or ForcePoll is set.
	PollInterval time.Duration
	ForcePoll    bool
	// BufferSize bounds undelivered batches.
	BufferSize int
}

// Defaults.
const (
	DefaultDebounce     = 2 * time.Second
	DefaultPollInterval = 5 * time.Second
	DefaultBufferSize   = 16
)

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	return o
}

// filter decides which paths matter to the index.
type filter struct {
	exts    map[string]bool
	exclude *scanner.Matcher
}

func newFilter(extensions, exclude []string) *filter {
	f := &filter{exts: make(map[string]bool, len(extensions)), exclude: scanner.NewMatcher(exclude...)}
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		f.exts[e] = true
	}
	return f
}

// skipDir reports whether rel (slash separated) should not be watched.
func (f *filter) skipDir(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	if base := filepath.Base(rel); base == ".git" || base == ".codechat" {
		return true
	}
	return f.exclude.Match(rel, true)
}

// classify returns the operation to report for rel, or false to drop it.
func (f *filter) classify(rel string, isDir bool, op Operation) (Operation, bool) {
	if rel == "." || rel == "" {
		return op, false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".git" || seg == ".codechat" {
			return op, false
		}
	}
	if filepath.Base(rel) == ".gitignore" {
		return OpIgnoreChange, true
	}
	if f.exclude.Match(rel, isDir) {
		return op, false
	}
	if isDir {
		// Deleting or renaming a directory removes the files under it.
		return op, op == OpDelete || op == OpRename
	}
	if len(f.exts) == 0 {
		return op, true
	}
	return op, f.exts[strings.ToLower(filepath.Ext(rel))]
}
