package retrieve

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/Aman-CERP/codechat/internal/index"
	"github.com/Aman-CERP/codechat/internal/tokenize"
)

const (
	// TermTokenizerName is the bleve tokenizer that emits codechat terms.
	TermTokenizerName = "codechat_terms"

	// TermAnalyzerName is the analyzer built on TermTokenizerName.
	TermAnalyzerName = "codechat_analyzer"

	bleveBatchSize = 1000
)

func init() {
	_ = registry.RegisterTokenizer(TermTokenizerName, termTokenizerConstructor)
}

// bleveDoc is the document indexed per chunk. The file name is indexed with
// the content so path matches contribute to the score.
type bleveDoc struct {
	Content string `json:"content"`
}

// BleveScorer scores chunks with an in-memory bleve index built once per
// snapshot version.
type BleveScorer struct {
	indexes perVersion[bleve.Index]
}

// NewBleveScorer creates a bleve-backed scorer.
func NewBleveScorer() *BleveScorer {
	s := &BleveScorer{}
	s.indexes.build = buildBleveIndex
	s.indexes.release = func(idx bleve.Index) { _ = idx.Close() }
	return s
}

// Name implements Scorer.
func (s *BleveScorer) Name() string { return ScorerBleve }

// Score implements Scorer.
func (s *BleveScorer) Score(ctx context.Context, snap *index.Snapshot, query string, terms []string) (map[int]float64, error) {
	idx, done, err := s.indexes.acquire(ctx, snap)
	if err != nil {
		return nil, err
	}
	defer done()

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	// Every hit is requested so ties are broken by Rank, not by bleve.
	req := bleve.NewSearchRequest(matchQuery)
	req.Size = snap.Len()

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	scores := make(map[int]float64, len(res.Hits))
	for _, hit := range res.Hits {
		pos, err := strconv.Atoi(hit.ID)
		if err != nil {
			continue
		}
		scores[pos] = hit.Score
	}
	return scores, nil
}

// Close releases the in-memory indexes.
func (s *BleveScorer) Close() error {
	s.indexes.close()
	return nil
}

func newTermMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(TermAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": TermTokenizerName,
	})
	if err != nil {
		return nil, fmt.Errorf("add analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = TermAnalyzerName
	return indexMapping, nil
}

func buildBleveIndex(ctx context.Context, snap *index.Snapshot) (bleve.Index, error) {
	indexMapping, err := newTermMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}

	batch := idx.NewBatch()
	for i, c := range snap.Chunks() {
		doc := bleveDoc{Content: c.FileName + "\n" + c.Content}
		if err := batch.Index(strconv.Itoa(i), doc); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
		if batch.Size() >= bleveBatchSize {
			if err := ctx.Err(); err != nil {
				_ = idx.Close()
				return nil, err
			}
			if err := idx.Batch(batch); err != nil {
				_ = idx.Close()
				return nil, fmt.Errorf("bleve batch: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("bleve batch: %w", err)
		}
	}
	return idx, nil
}

func termTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return termTokenizer{}, nil
}

// termTokenizer emits the same folded, translated and stemmed terms the
// lexical scorer uses. Offsets are not tracked.
type termTokenizer struct{}

func (termTokenizer) Tokenize(input []byte) analysis.TokenStream {
	terms := tokenize.Tokenize(string(input))
	stream := make(analysis.TokenStream, 0, len(terms))
	for i, t := range terms {
		stream = append(stream, &analysis.Token{
			Term:     []byte(t),
			Start:    0,
			End:      len(input),
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return stream
}
