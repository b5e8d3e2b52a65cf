// Package index builds and publishes immutable snapshots of source chunks.
//
// A Snapshot is never modified after NewSnapshot returns; reindexing builds
// a new one and Holder swaps it in atomically, so readers need no locks.
package index

import (
	"encoding/hex"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/Aman-CERP/codechat/internal/tokenize"
)

// Chunk is one retrievable slice of a source file.
type Chunk struct {
	ID        string
	FilePath  string
	FileName  string
	StartLine int
	EndLine   int
	Content   string
	Language  string

	// Terms is the chunk's token vector: stemmed term -> frequency.
	Terms map[string]int
	// Length is the total number of terms.
	Length int
	// NameTerms and DirTerms hold the terms of the file name and of the
	// directory path, for path-aware scoring.
	NameTerms map[string]bool
	DirTerms  map[string]bool
}

// NewChunk builds a chunk and derives its id and token vector. The id
// depends only on path, line range and content.
func NewChunk(filePath string, startLine, endLine int, content, language string) *Chunk {
	filePath = strings.TrimPrefix(path.Clean("/"+toSlash(filePath)), "/")
	name := path.Base(filePath)
	dir := path.Dir(filePath)

	terms, length := tokenize.Terms(content)

	return &Chunk{
		ID:        ChunkID(filePath, startLine, endLine, content),
		FilePath:  filePath,
		FileName:  name,
		StartLine: startLine,
		EndLine:   endLine,
		Content:   content,
		Language:  language,
		Terms:     terms,
		Length:    length,
		NameTerms: termSet(strings.TrimSuffix(name, path.Ext(name))),
		DirTerms:  termSet(strings.ReplaceAll(dir, "/", " ")),
	}
}

func termSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokenize.Tokenize(s) {
		set[t] = true
	}
	return set
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// ChunkID returns a stable 128-bit xxh3 id for a chunk.
func ChunkID(filePath string, startLine, endLine int, content string) string {
	contentHash := xxh3.HashString(content)
	key := filePath + ":" + strconv.Itoa(startLine) + ":" + strconv.Itoa(endLine) + ":" + strconv.FormatUint(contentHash, 16)
	sum := xxh3.HashString128(key).Bytes()
	return hex.EncodeToString(sum[:])
}

// Snapshot is an immutable, ordered set of chunks plus corpus statistics.
type Snapshot struct {
	chunks    []*Chunk
	docFreq   map[string]int
	avgLength float64
	files     int
	version   string
	builtAt   time.Time
}

// NewSnapshot orders chunks by (FilePath, StartLine) and computes document
// frequencies and the version fingerprint. Callers must not modify the
// chunks afterwards.
func NewSnapshot(chunks []*Chunk, builtAt time.Time) *Snapshot {
	ordered := make([]*Chunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].FilePath != ordered[j].FilePath {
			return ordered[i].FilePath < ordered[j].FilePath
		}
		if ordered[i].StartLine != ordered[j].StartLine {
			return ordered[i].StartLine < ordered[j].StartLine
		}
		return ordered[i].ID < ordered[j].ID
	})

	s := &Snapshot{
		chunks:  ordered,
		docFreq: make(map[string]int),
		builtAt: builtAt,
	}

	h := xxh3.New()
	total := 0
	lastFile := ""
	for _, c := range ordered {
		for term := range c.Terms {
			s.docFreq[term]++
		}
		total += c.Length
		if c.FilePath != lastFile {
			s.files++
			lastFile = c.FilePath
		}
		_, _ = h.WriteString(c.ID)
	}
	if len(ordered) > 0 {
		s.avgLength = float64(total) / float64(len(ordered))
	}
	s.version = strconv.FormatUint(h.Sum64(), 16)
	return s
}

// Empty returns a snapshot with no chunks.
func Empty() *Snapshot {
	return NewSnapshot(nil, time.Time{})
}

// Chunks returns the ordered chunks. The slice must be treated as read-only.
func (s *Snapshot) Chunks() []*Chunk { return s.chunks }

// Len returns the number of chunks.
func (s *Snapshot) Len() int { return len(s.chunks) }

// IsEmpty reports whether the snapshot has no chunks.
func (s *Snapshot) IsEmpty() bool { return len(s.chunks) == 0 }

// Files returns the number of distinct files.
func (s *Snapshot) Files() int { return s.files }

// DocFreq returns how many chunks contain term.
func (s *Snapshot) DocFreq(term string) int { return s.docFreq[term] }

// AvgLength returns the mean chunk length in terms.
func (s *Snapshot) AvgLength() float64 { return s.avgLength }

// Version fingerprints the chunk ids; equal versions mean equal content.
func (s *Snapshot) Version() string { return s.version }

// BuiltAt returns when the snapshot was built.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }
