package index

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/codechat/internal/chunk"
	"github.com/Aman-CERP/codechat/internal/scanner"
)

// Options configures a Builder.
type Options struct {
	Roots            []string
	Extensions       []string
	Exclude          []string
	RespectGitignore bool
	MaxFileSize      int64
	Chunk            chunk.Options
	// Workers bounds concurrent file reads and chunking (0 = GOMAXPROCS).
	Workers int
	// Progress, when set, is called once after the scan and after every
	// chunked file. It is called from worker goroutines.
	Progress ProgressFunc
}

// ProgressFunc receives the number of files chunked so far, the number of
// files found and the file just finished ("" for the initial call).
type ProgressFunc func(done, total int, path string)

// BuildStats describes one build.
type BuildStats struct {
	Files      int
	Chunks     int
	Skipped    int
	Excluded   int
	ReadErrors int
	Duration   time.Duration
}

// Builder turns a file tree into a Snapshot.
type Builder struct {
	opts    Options
	scanner *scanner.Scanner
	chunker *chunk.Chunker
	logger  *slog.Logger
	now     func() time.Time
}

// NewBuilder creates a builder. A nil logger uses slog.Default().
func NewBuilder(opts Options, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{
		opts: opts,
		scanner: scanner.New(scanner.Options{
			Roots:            opts.Roots,
			Extensions:       opts.Extensions,
			Exclude:          opts.Exclude,
			RespectGitignore: opts.RespectGitignore,
			MaxFileSize:      opts.MaxFileSize,
		}, logger),
		chunker: chunk.New(opts.Chunk),
		logger:  logger,
		now:     time.Now,
	}
}

// Roots returns the configured roots.
func (b *Builder) Roots() []string {
	return b.opts.Roots
}

// Build scans, reads and chunks every file. Unreadable files are logged and
// skipped; the only error returned is context cancellation.
func (b *Builder) Build(ctx context.Context) (*Snapshot, BuildStats, error) {
	start := b.now()

	files, scanStats, err := b.scanner.Scan(ctx)
	if err != nil {
		return nil, BuildStats{}, err
	}

	perFile := make([][]*Chunk, len(files))
	var readErrors, done atomic.Int64
	if b.opts.Progress != nil {
		b.opts.Progress(0, len(files), "")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(f.AbsPath)
			if err != nil {
				b.logger.Warn("index_file_skipped",
					slog.String("path", f.Path),
					slog.String("error", err.Error()))
				readErrors.Add(1)
				if b.opts.Progress != nil {
					b.opts.Progress(int(done.Add(1)), len(files), f.Path)
				}
				return nil
			}
			for _, c := range b.chunker.Split(gctx, content, f.Language) {
				perFile[i] = append(perFile[i], NewChunk(f.Path, c.StartLine, c.EndLine, c.Content, f.Language))
			}
			if b.opts.Progress != nil {
				b.opts.Progress(int(done.Add(1)), len(files), f.Path)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, BuildStats{}, err
	}

	var chunks []*Chunk
	for _, cs := range perFile {
		chunks = append(chunks, cs...)
	}
	snap := NewSnapshot(chunks, b.now())

	stats := BuildStats{
		Files:      snap.Files(),
		Chunks:     snap.Len(),
		Skipped:    scanStats.Skipped,
		Excluded:   scanStats.Excluded,
		ReadErrors: int(readErrors.Load()) + scanStats.Errors,
		Duration:   b.now().Sub(start),
	}
	b.logger.Info("index_complete",
		slog.Int("files", stats.Files),
		slog.Int("chunks", stats.Chunks),
		slog.Int("skipped", stats.Skipped),
		slog.Int("read_errors", stats.ReadErrors),
		slog.String("version", snap.Version()),
		slog.Int64("duration_ms", stats.Duration.Milliseconds()))

	return snap, stats, nil
}

// BuildIndex is a one-shot build with default chunking and no .gitignore
// handling.
func BuildIndex(ctx context.Context, roots, includeExt, excludePatterns []string) (*Snapshot, error) {
	b := NewBuilder(Options{
		Roots:      roots,
		Extensions: includeExt,
		Exclude:    excludePatterns,
		Chunk:      chunk.Options{Structural: true},
	}, nil)
	snap, _, err := b.Build(ctx)
	return snap, err
}
