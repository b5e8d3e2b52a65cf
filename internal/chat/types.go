// Package chat answers questions about the indexed codebase: it validates
// and rate limits a question, serves repeats from the cache, retrieves code,
// and asks the synthesizer for an answer.
package chat

import (
	"context"
	"time"

	"github.com/Aman-CERP/codechat/internal/cache"
)

// Query is one incoming question.
type Query struct {
	Question string
	// Identity keys rate limiting: user id, client address or "anonymous".
	Identity string
}

// AnonymousIdentity is used when a request carries no identity.
const AnonymousIdentity = "anonymous"

// Source is a retrieved chunk as shown to the client.
type Source struct {
	FileName    string  `json:"fileName"`
	FilePath    string  `json:"filePath"`
	CodeSnippet string  `json:"codeSnippet"`
	Score       float64 `json:"score"`
}

// Response is the answer to a question.
type Response struct {
	Answer            string   `json:"answer"`
	Sources           []Source `json:"sources"`
	FollowUpQuestions []string `json:"followUpQuestions"`
	RequestID         string   `json:"requestId"`
	DurationMs        int64    `json:"durationMs"`
	FromCache         bool     `json:"fromCache"`
}

// Clone returns a deep copy.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Sources = append(make([]Source, 0, len(r.Sources)), r.Sources...)
	c.FollowUpQuestions = append(make([]string, 0, len(r.FollowUpQuestions)), r.FollowUpQuestions...)
	return &c
}

// Outcomes recorded per request.
const (
	OutcomeAnswered = "answered"
	OutcomeCacheHit = "cache_hit"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Event describes one finished Ask for telemetry.
type Event struct {
	RequestID string
	Identity  string
	Outcome   string
	Code      string
	FromCache bool
	Duration  time.Duration
	Sources   int
	At        time.Time
}

// Recorder stores request events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Health summarizes service state.
type Health struct {
	Status      string            `json:"status"`
	Synthesizer SynthesizerHealth `json:"synthesizer"`
	Index       IndexHealth       `json:"index"`
	Cache       cache.Stats       `json:"cache"`
	Timestamp   time.Time         `json:"timestamp"`
}

// SynthesizerHealth reports the answer backend.
type SynthesizerHealth struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Circuit   string `json:"circuit,omitempty"`
}

// IndexHealth reports the published snapshot.
type IndexHealth struct {
	Chunks  int       `json:"chunks"`
	Files   int       `json:"files"`
	Version string    `json:"version"`
	BuiltAt time.Time `json:"builtAt"`
}

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// ReindexResult reports a rebuild.
type ReindexResult struct {
	Files      int    `json:"files"`
	Chunks     int    `json:"chunks"`
	Skipped    int    `json:"skipped"`
	Excluded   int    `json:"excluded"`
	Version    string `json:"version"`
	DurationMs int64  `json:"durationMs"`
}
