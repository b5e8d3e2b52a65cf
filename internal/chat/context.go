package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/codechat/internal/retrieve"
)

// AssembleContext renders results as "[path:start-end]\ncontent\n\n" blocks
// in score order, stopping before the block that would exceed budget bytes.
// Lower-scored chunks are therefore the first to go. If even the best block
// is too large it is cut to fit.
func AssembleContext(results []retrieve.Result, budget int) string {
	var b strings.Builder
	for i, r := range results {
		block := formatBlock(r)
		if b.Len()+len(block) > budget {
			if i == 0 && budget > 0 {
				b.WriteString(truncateBytes(block, budget))
			}
			break
		}
		b.WriteString(block)
	}
	return b.String()
}

func formatBlock(r retrieve.Result) string {
	c := r.Chunk
	return fmt.Sprintf("[%s:%d-%d]\n%s\n\n", c.FilePath, c.StartLine, c.EndLine, strings.TrimRight(c.Content, "\n"))
}

// ToSources projects results to client sources with snippets of at most
// snippetLength runes.
func ToSources(results []retrieve.Result, snippetLength int) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		out = append(out, Source{
			FileName:    r.Chunk.FileName,
			FilePath:    r.Chunk.FilePath,
			CodeSnippet: truncateRunes(r.Chunk.Content, snippetLength),
			Score:       r.Score,
		})
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
