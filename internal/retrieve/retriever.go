// Package retrieve ranks indexed chunks against a question.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Aman-CERP/codechat/internal/index"
	"github.com/Aman-CERP/codechat/internal/tokenize"
)

// Scorer names accepted by NewScorer.
const (
	ScorerLexical = "lexical"
	ScorerBleve   = "bleve"
	ScorerVector  = "vector"
)

// Result is a chunk with its relevance score.
type Result struct {
	Chunk *index.Chunk
	Score float64
}

// Scorer assigns a relevance score to chunks of a snapshot. The returned
// map is keyed by the chunk's position in snap.Chunks(); chunks that are
// absent score zero.
type Scorer interface {
	Name() string
	Score(ctx context.Context, snap *index.Snapshot, query string, terms []string) (map[int]float64, error)
}

// SnapshotSource supplies the snapshot to search.
type SnapshotSource interface {
	Current() *index.Snapshot
}

// NewScorer returns the scorer registered under name. An empty name selects
// the lexical scorer.
func NewScorer(name string) (Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ScorerLexical:
		return NewLexicalScorer(), nil
	case ScorerBleve:
		return NewBleveScorer(), nil
	case ScorerVector:
		return NewVectorScorer(DefaultDimensions), nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", name)
	}
}

// Retriever returns the top-k chunks for a question from the current
// snapshot.
type Retriever struct {
	source SnapshotSource
	scorer Scorer
	logger *slog.Logger
}

// New creates a retriever. A nil scorer selects the lexical scorer.
func New(source SnapshotSource, scorer Scorer, logger *slog.Logger) *Retriever {
	if scorer == nil {
		scorer = NewLexicalScorer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{source: source, scorer: scorer, logger: logger}
}

// Scorer returns the scorer in use.
func (r *Retriever) Scorer() Scorer { return r.scorer }

// Retrieve ranks the current snapshot against query. The snapshot is read
// once, so a concurrent reindex never mixes two snapshots in one result.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	return r.RetrieveFrom(ctx, r.source.Current(), query, k)
}

// RetrieveFrom ranks snap against query.
func (r *Retriever) RetrieveFrom(ctx context.Context, snap *index.Snapshot, query string, k int) ([]Result, error) {
	if k <= 0 || snap == nil || snap.IsEmpty() {
		return []Result{}, nil
	}
	terms := tokenize.Unique(query)
	if len(terms) == 0 {
		return []Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores, err := r.scorer.Score(ctx, snap, query, terms)
	if err != nil {
		return nil, fmt.Errorf("%s scorer: %w", r.scorer.Name(), err)
	}

	chunks := snap.Chunks()
	results := make([]Result, 0, len(scores))
	for i, s := range scores {
		if i < 0 || i >= len(chunks) {
			continue
		}
		results = append(results, Result{Chunk: chunks[i], Score: s})
	}
	ranked := Rank(results, k)

	r.logger.Debug("retrieve",
		slog.String("scorer", r.scorer.Name()),
		slog.Int("terms", len(terms)),
		slog.Int("candidates", len(results)),
		slog.Int("returned", len(ranked)))
	return ranked, nil
}

// Rank drops non-positive scores, orders by score descending with ties
// broken by ascending file path then start line, and keeps at most k.
func Rank(results []Result, k int) []Result {
	if k <= 0 {
		return []Result{}
	}
	kept := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Score > 0 && r.Chunk != nil {
			kept = append(kept, r)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.FilePath != b.Chunk.FilePath {
			return a.Chunk.FilePath < b.Chunk.FilePath
		}
		if a.Chunk.StartLine != b.Chunk.StartLine {
			return a.Chunk.StartLine < b.Chunk.StartLine
		}
		return a.Chunk.ID < b.Chunk.ID
	})
	if len(kept) > k {
		kept = kept[:k]
	}
	return kept
}
