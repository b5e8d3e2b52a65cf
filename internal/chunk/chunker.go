// Package chunk splits source files into deterministic, line-bounded
// chunks. Window ends are pulled back to declaration boundaries when the
// language has a tree-sitter grammar.
package chunk

import (
	"context"
	"strings"
)

// Defaults used when Options fields are zero.
const (
	DefaultLines    = 60
	DefaultOverlap  = 10
	DefaultMaxChars = 4000
)

// Chunk is a contiguous slice of one file. Lines are 1-based, inclusive.
type Chunk struct {
	StartLine int
	EndLine   int
	Content   string
}

// Options controls window sizes.
type Options struct {
	// Lines is the maximum number of lines per chunk.
	Lines int
	// Overlap is how many trailing lines of a window are repeated at the
	// start of the next one when the window did not end on a boundary.
	Overlap int
	// MaxChars caps chunk size; windows shrink line by line to fit.
	MaxChars int
	// Structural enables tree-sitter boundary alignment.
	Structural bool
}

// Chunker splits files. It is safe for concurrent use.
type Chunker struct {
	opts Options
}

// New returns a chunker with defaults applied.
func New(opts Options) *Chunker {
	if opts.Lines <= 0 {
		opts.Lines = DefaultLines
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Lines {
		opts.Overlap = 0
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	return &Chunker{opts: opts}
}

// Split chunks content. The same input always produces the same chunks.
// Whitespace-only windows are dropped.
func (c *Chunker) Split(ctx context.Context, content []byte, lang string) []Chunk {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	n := len(lines)

	// prefix[i] = characters in lines[0:i] including newlines.
	prefix := make([]int, n+1)
	for i, l := range lines {
		prefix[i+1] = prefix[i] + len(l) + 1
	}
	size := func(from, to int) int { return prefix[to] - prefix[from-1] - 1 }

	var isBoundary map[int]bool
	if c.opts.Structural {
		if b := Boundaries(ctx, []byte(text), lang); len(b) > 0 {
			isBoundary = make(map[int]bool, len(b))
			for _, l := range b {
				isBoundary[l] = true
			}
		}
	}

	var chunks []Chunk
	start := 1
	for start <= n {
		end := min(start+c.opts.Lines-1, n)
		aligned := false

		// Prefer ending right before a declaration in the back half.
		if end < n && isBoundary != nil {
			for b := end + 1; b > start+c.opts.Lines/2; b-- {
				if isBoundary[b] {
					end = b - 1
					aligned = true
					break
				}
			}
		}

		for end > start && size(start, end) > c.opts.MaxChars {
			end--
			aligned = false
		}

		body := strings.Join(lines[start-1:end], "\n")
		if len(body) > c.opts.MaxChars {
			body = truncateUTF8(body, c.opts.MaxChars)
		}
		if strings.TrimSpace(body) != "" {
			chunks = append(chunks, Chunk{StartLine: start, EndLine: end, Content: body})
		}

		if end >= n {
			break
		}
		next := end + 1
		if !aligned && c.opts.Overlap > 0 {
			next = max(end+1-c.opts.Overlap, start+1)
		}
		start = next
	}
	return chunks
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
