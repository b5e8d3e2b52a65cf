// Package scanner discovers indexable source files under one or more roots,
// applying extension filters, exclusion patterns, .gitignore rules and size
// limits. It only ever reads the file tree.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultMaxFileSize is used when Options.MaxFileSize is zero.
const DefaultMaxFileSize = 500 * 1024

// binarySniffLen is how much of a file is checked for NUL bytes.
const binarySniffLen = 8 * 1024

// File describes one discovered file.
type File struct {
	// Path is the slash separated display path. With a single root it is
	// relative to that root; with several it is prefixed by the root's name.
	Path     string
	AbsPath  string
	Root     string
	Size     int64
	ModTime  time.Time
	Language string
}

// Options configures a scan.
type Options struct {
	Roots            []string
	Extensions       []string
	Exclude          []string
	RespectGitignore bool
	MaxFileSize      int64
}

// Stats summarizes the last scan.
type Stats struct {
	Files    int
	Skipped  int
	Excluded int
	Errors   int
}

// Scanner walks roots according to Options.
type Scanner struct {
	opts    Options
	exts    map[string]bool
	exclude *Matcher
	logger  *slog.Logger
}

// New creates a scanner. A nil logger uses slog.Default().
func New(opts Options, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}

	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}

	return &Scanner{
		opts:    opts,
		exts:    exts,
		exclude: NewMatcher(opts.Exclude...),
		logger:  logger,
	}
}

// Scan returns every indexable file sorted by Path. Missing roots and
// unreadable entries are logged and skipped; only context cancellation is
// returned as an error.
func (s *Scanner) Scan(ctx context.Context) ([]File, Stats, error) {
	var (
		files []File
		stats Stats
	)
	multi := len(s.opts.Roots) > 1

	for _, root := range s.opts.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			s.logger.Warn("invalid index root", slog.String("root", root), slog.String("error", err.Error()))
			stats.Errors++
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			s.logger.Warn("index root missing or not a directory", slog.String("root", abs))
			continue
		}

		prefix := ""
		if multi {
			prefix = filepath.Base(abs)
		}
		found, err := s.scanRoot(ctx, abs, prefix, &stats)
		if err != nil {
			return nil, stats, err
		}
		files = append(files, found...)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Path != files[j].Path {
			return files[i].Path < files[j].Path
		}
		return files[i].AbsPath < files[j].AbsPath
	})
	stats.Files = len(files)
	return files, stats, nil
}

func (s *Scanner) scanRoot(ctx context.Context, root, prefix string, stats *Stats) ([]File, error) {
	var files []File
	ignore := NewMatcher()

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if walkErr != nil {
			s.logger.Warn("skipping unreadable path", slog.String("path", p), slog.String("error", walkErr.Error()))
			stats.Errors++
			if d != nil && d.IsDir() && rel != "." {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if rel == "." {
				s.loadGitignore(ignore, p, "")
				return nil
			}
			if s.exclude.Match(rel, true) || ignore.Match(rel, true) {
				stats.Excluded++
				return fs.SkipDir
			}
			s.loadGitignore(ignore, p, rel)
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}
		if !s.exts[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		if s.exclude.Match(rel, false) || ignore.Match(rel, false) {
			stats.Excluded++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Warn("skipping unreadable file", slog.String("path", rel), slog.String("error", err.Error()))
			stats.Errors++
			return nil
		}
		if info.Size() > s.opts.MaxFileSize {
			s.logger.Debug("skipping large file", slog.String("path", rel), slog.Int64("size", info.Size()))
			stats.Skipped++
			return nil
		}
		if isBinary(p) {
			stats.Skipped++
			return nil
		}

		display := rel
		if prefix != "" {
			display = path.Join(prefix, rel)
		}
		files = append(files, File{
			Path:     display,
			AbsPath:  p,
			Root:     root,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Language: DetectLanguage(p),
		})
		return nil
	})
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}
	return files, nil
}

func (s *Scanner) loadGitignore(m *Matcher, dir, rel string) {
	if !s.opts.RespectGitignore {
		return
	}
	file := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(file); err != nil {
		return
	}
	base := rel
	if base == "." {
		base = ""
	}
	if err := m.AddFile(file, base); err != nil {
		s.logger.Warn("ignoring unreadable .gitignore", slog.String("path", file), slog.String("error", err.Error()))
	}
}

// isBinary reports whether the head of the file contains a NUL byte.
// Unreadable files are treated as binary so they are skipped.
func isBinary(p string) bool {
	f, err := os.Open(p)
	if err != nil {
		return true
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, binarySniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return true
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
