package retrieve

import (
	"context"
	"math"
	"strings"

	"github.com/Aman-CERP/codechat/internal/index"
)

// BM25 parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Path feature weights.
const (
	fileNameWeight = 10.0
	dirPathWeight  = 5.0
)

// pathBoost multiplies the score of chunks whose path matches.
type pathBoost struct {
	contains string
	factor   float64
}

var defaultPathBoosts = []pathBoost{
	{contains: "Controller.", factor: 1.5},
	{contains: "Service.", factor: 1.3},
	{contains: "/Models/", factor: 1.2},
}

// LexicalScorer is a linear-scan BM25 scorer over the chunk token vectors,
// with additive file name and directory matches and multiplicative path
// boosts.
type LexicalScorer struct {
	K1     float64
	B      float64
	boosts []pathBoost
}

// NewLexicalScorer returns a scorer with k1=1.2, b=0.75 and the default path
// boosts.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{K1: DefaultK1, B: DefaultB, boosts: defaultPathBoosts}
}

// Name implements Scorer.
func (s *LexicalScorer) Name() string { return ScorerLexical }

// Score implements Scorer.
func (s *LexicalScorer) Score(ctx context.Context, snap *index.Snapshot, _ string, terms []string) (map[int]float64, error) {
	n := float64(snap.Len())
	avg := snap.AvgLength()
	if avg == 0 {
		avg = 1
	}

	idf := make([]float64, len(terms))
	for i, t := range terms {
		df := float64(snap.DocFreq(t))
		idf[i] = math.Log(1 + (n-df+0.5)/(df+0.5))
	}

	scores := make(map[int]float64)
	for i, c := range snap.Chunks() {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		score := 0.0
		norm := s.K1 * (1 - s.B + s.B*float64(c.Length)/avg)
		for j, t := range terms {
			if tf := float64(c.Terms[t]); tf > 0 {
				score += idf[j] * tf * (s.K1 + 1) / (tf + norm)
			}
			if c.NameTerms[t] {
				score += fileNameWeight
			}
			if c.DirTerms[t] {
				score += dirPathWeight
			}
		}
		if score <= 0 {
			continue
		}
		scores[i] = score * s.boost(c.FilePath)
	}
	return scores, nil
}

func (s *LexicalScorer) boost(filePath string) float64 {
	p := "/" + filePath
	factor := 1.0
	for _, b := range s.boosts {
		if strings.Contains(p, b.contains) {
			factor *= b.factor
		}
	}
	return factor
}
