package retrieve

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/codechat/internal/index"
	"github.com/Aman-CERP/codechat/internal/tokenize"
)

const (
	// DefaultDimensions is the size of the static hash embeddings.
	DefaultDimensions = 256

	tokenWeight = 0.7
	ngramWeight = 0.3

	// vectorCandidates bounds the neighbours pulled from the graph.
	vectorCandidates = 200
)

// Embedder turns text into a fixed-size vector.
type Embedder interface {
	Embed(text string) []float32
	Dimensions() int
}

// HashEmbedder is a dependency-free embedder: hashed term features plus
// character trigrams, L2 normalized. Similar identifiers land close even
// without a model.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns an embedder producing dims-sized vectors.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions implements Embedder.
func (e *HashEmbedder) Dimensions() int { return e.dims }

// Embed implements Embedder. Text with no features yields the zero vector.
func (e *HashEmbedder) Embed(text string) []float32 {
	vec := make([]float32, e.dims)
	for _, t := range tokenize.Tokenize(text) {
		vec[hashToIndex(t, e.dims)] += tokenWeight
	}
	for _, g := range trigrams(ngramText(text)) {
		vec[hashToIndex(g, e.dims)] += ngramWeight
	}
	normalize(vec)
	return vec
}

func ngramText(text string) string {
	var b strings.Builder
	for _, r := range tokenize.Fold(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func trigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 3 {
		return nil
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// vectorIndex is the graph for one snapshot plus the stored vectors.
type vectorIndex struct {
	graph   *hnsw.Graph[int]
	vectors map[int][]float32
}

// VectorScorer scores chunks by cosine similarity of hash embeddings,
// searched through an HNSW graph built once per snapshot version.
type VectorScorer struct {
	embedder Embedder
	indexes  perVersion[*vectorIndex]
}

// NewVectorScorer creates a scorer with a HashEmbedder of dims dimensions.
func NewVectorScorer(dims int) *VectorScorer {
	return NewVectorScorerWith(NewHashEmbedder(dims))
}

// NewVectorScorerWith creates a scorer around any embedder.
func NewVectorScorerWith(embedder Embedder) *VectorScorer {
	s := &VectorScorer{embedder: embedder}
	s.indexes.build = s.build
	return s
}

// Name implements Scorer.
func (s *VectorScorer) Name() string { return ScorerVector }

// Score implements Scorer. Non-positive similarities are left out.
func (s *VectorScorer) Score(ctx context.Context, snap *index.Snapshot, query string, _ []string) (map[int]float64, error) {
	idx, done, err := s.indexes.acquire(ctx, snap)
	if err != nil {
		return nil, err
	}
	defer done()

	q := s.embedder.Embed(query)
	scores := make(map[int]float64)
	if idx.graph.Len() == 0 || dot(q, q) == 0 {
		return scores, nil
	}

	k := vectorCandidates
	if n := idx.graph.Len(); n < k {
		k = n
	}
	for _, node := range idx.graph.Search(q, k) {
		if sim := dot(q, idx.vectors[node.Key]); sim > 0 {
			scores[node.Key] = sim
		}
	}
	return scores, nil
}

func (s *VectorScorer) build(ctx context.Context, snap *index.Snapshot) (*vectorIndex, error) {
	graph := hnsw.NewGraph[int]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25

	idx := &vectorIndex{graph: graph, vectors: make(map[int][]float32, snap.Len())}
	for i, c := range snap.Chunks() {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		vec := s.embedder.Embed(c.FileName + "\n" + c.Content)
		if dot(vec, vec) == 0 {
			continue
		}
		idx.vectors[i] = vec
		graph.Add(hnsw.MakeNode(i, vec))
	}
	return idx, nil
}
