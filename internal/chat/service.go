package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Aman-CERP/codechat/internal/cache"
	cerrors "github.com/Aman-CERP/codechat/internal/errors"
	"github.com/Aman-CERP/codechat/internal/index"
	"github.com/Aman-CERP/codechat/internal/ratelimit"
	"github.com/Aman-CERP/codechat/internal/retrieve"
	"github.com/Aman-CERP/codechat/internal/sanitize"
	"github.com/Aman-CERP/codechat/internal/synth"
)

// Defaults for Options.
const (
	DefaultTopK              = 5
	DefaultContextBudget     = 12000
	DefaultSnippetLength     = 500
	MinQuestionLength        = 3
	DefaultMaxQuestionLength = 1000

	// DegradedCacheSize is the cache size at which health reports degraded.
	DegradedCacheSize = 10000
)

// Index is the snapshot owner the service reads from and rebuilds.
type Index interface {
	Current() *index.Snapshot
	Rebuild(ctx context.Context) (*index.Snapshot, index.BuildStats, error)
}

// ResponseCache stores answers by key.
type ResponseCache = cache.Cache[*Response]

// NewResponseCache creates a cache that deep-copies responses on the way in
// and out.
func NewResponseCache(opts cache.Options) (*ResponseCache, error) {
	return cache.New[*Response](opts, (*Response).Clone)
}

// Options tunes the orchestrator.
type Options struct {
	TopK              int
	ContextBudget     int
	SnippetLength     int
	MaxQuestionLength int
	CacheTTL          time.Duration
	// Sanitize screens questions for injection attempts.
	Sanitize bool
}

// Deps are the collaborators of a Service. Limiter and Recorder are
// optional.
type Deps struct {
	Index       Index
	Retriever   *retrieve.Retriever
	Cache       *ResponseCache
	Limiter     ratelimit.Limiter
	Synthesizer synth.Synthesizer
	Recorder    Recorder
	Logger      *slog.Logger
}

// Service is the chat orchestrator.
type Service struct {
	opts   Options
	index  Index
	ret    *retrieve.Retriever
	cache  *ResponseCache
	limit  ratelimit.Limiter
	synth  synth.Synthesizer
	rec    Recorder
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewService wires a Service. Index, Retriever, Cache and Synthesizer are
// required.
func NewService(opts Options, deps Deps) (*Service, error) {
	if deps.Index == nil || deps.Retriever == nil || deps.Cache == nil || deps.Synthesizer == nil {
		return nil, fmt.Errorf("chat: index, retriever, cache and synthesizer are required")
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = DefaultContextBudget
	}
	if opts.SnippetLength <= 0 {
		opts.SnippetLength = DefaultSnippetLength
	}
	if opts.MaxQuestionLength <= 0 {
		opts.MaxQuestionLength = DefaultMaxQuestionLength
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opts:   opts,
		index:  deps.Index,
		ret:    deps.Retriever,
		cache:  deps.Cache,
		limit:  deps.Limiter,
		synth:  deps.Synthesizer,
		rec:    deps.Recorder,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Ask answers q. Returned errors are *errors.ChatError.
func (s *Service) Ask(ctx context.Context, q Query) (*Response, error) {
	start := s.now()
	reqID := s.newID()
	identity := q.Identity
	if identity == "" {
		identity = AnonymousIdentity
	}

	resp, outcome, err := s.ask(ctx, reqID, identity, q.Question, start)

	duration := s.now().Sub(start)
	attrs := []any{
		slog.String("request_id", reqID),
		slog.String("identity", identity),
		slog.String("outcome", outcome),
		slog.Int64("duration_ms", duration.Milliseconds()),
	}
	event := Event{RequestID: reqID, Identity: identity, Outcome: outcome, Duration: duration, At: start}
	if err != nil {
		event.Code = cerrors.GetCode(err)
		attrs = append(attrs, cerrors.LogAttrs(err)...)
		if cerrors.GetCategory(err) == cerrors.CategoryValidation || cerrors.GetCategory(err) == cerrors.CategoryRateLimit {
			s.logger.Info("chat_request", attrs...)
		} else {
			s.logger.Warn("chat_request", attrs...)
		}
	} else {
		event.FromCache = resp.FromCache
		event.Sources = len(resp.Sources)
		attrs = append(attrs,
			slog.Bool("from_cache", resp.FromCache),
			slog.Int("sources", len(resp.Sources)))
		s.logger.Info("chat_request", attrs...)
	}
	s.record(ctx, event)

	return resp, err
}

func (s *Service) ask(ctx context.Context, reqID, identity, question string, start time.Time) (*Response, string, error) {
	// RECEIVED
	question, err := s.validate(question)
	if err != nil {
		return nil, OutcomeRejected, err
	}

	// RATE_CHECK
	if s.limit != nil {
		d, err := s.limit.TryAcquire(ctx, identity)
		if err != nil {
			return nil, OutcomeRejected, cancelled(err)
		}
		if !d.Allowed() {
			return nil, OutcomeRejected, cerrors.RateLimitError(d.RetryAfter).WithDetail("limiter", d.Limiter)
		}
	}

	// CACHE_LOOKUP. The snapshot is read once so the cache key and the
	// retrieved chunks always agree.
	snap := s.index.Current()
	key := cache.Key(snap.Version(), question)
	lookupStart := s.now()
	if hit, ok := s.cache.Get(key); ok {
		hit.FromCache = true
		hit.RequestID = reqID
		hit.DurationMs = s.now().Sub(lookupStart).Milliseconds()
		return hit, OutcomeCacheHit, nil
	}

	// RETRIEVE
	if snap.IsEmpty() {
		s.logger.Warn("index_empty",
			slog.String("request_id", reqID),
			slog.String("code", cerrors.CodeIndexEmpty))
	}
	results, err := s.ret.RetrieveFrom(ctx, snap, question, s.opts.TopK)
	if err != nil {
		if ctx.Err() != nil {
			return nil, OutcomeFailed, cancelled(ctx.Err())
		}
		return nil, OutcomeFailed, cerrors.InternalError("An unexpected error occurred.", err)
	}

	// SYNTHESIZE
	answer, err := s.synth.Synthesize(ctx, question, AssembleContext(results, s.opts.ContextBudget))
	if err != nil {
		if ctx.Err() != nil {
			return nil, OutcomeFailed, cancelled(err)
		}
		return nil, OutcomeFailed, cerrors.SynthesisError(err)
	}

	resp := &Response{
		Answer:            answer.Text,
		Sources:           ToSources(results, s.opts.SnippetLength),
		FollowUpQuestions: answer.FollowUps,
		RequestID:         reqID,
		DurationMs:        s.now().Sub(start).Milliseconds(),
		FromCache:         false,
	}
	if resp.FollowUpQuestions == nil {
		resp.FollowUpQuestions = []string{}
	}

	// CACHE_STORE
	if ctx.Err() == nil {
		s.cache.Put(key, resp, s.opts.CacheTTL)
	}
	return resp, OutcomeAnswered, nil
}

func (s *Service) validate(question string) (string, error) {
	question = strings.TrimSpace(question)
	n := utf8.RuneCountInString(question)
	if n < MinQuestionLength {
		return "", cerrors.ValidationError(fmt.Sprintf("Question must be at least %d characters.", MinQuestionLength))
	}
	if n > s.opts.MaxQuestionLength {
		return "", cerrors.ValidationError(fmt.Sprintf("Question must be at most %d characters.", s.opts.MaxQuestionLength))
	}
	if !s.opts.Sanitize {
		return question, nil
	}
	clean, err := sanitize.Question(question)
	if err != nil {
		return "", err
	}
	if utf8.RuneCountInString(clean) < MinQuestionLength {
		return "", cerrors.ValidationError(fmt.Sprintf("Question must be at least %d characters.", MinQuestionLength))
	}
	return clean, nil
}

// Search returns the top-k sources for question without synthesis.
func (s *Service) Search(ctx context.Context, question string, k int) ([]Source, error) {
	question = strings.TrimSpace(question)
	if utf8.RuneCountInString(question) < MinQuestionLength {
		return nil, cerrors.ValidationError(fmt.Sprintf("Query must be at least %d characters.", MinQuestionLength))
	}
	if k <= 0 {
		k = s.opts.TopK
	}
	results, err := s.ret.Retrieve(ctx, question, k)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		return nil, cerrors.InternalError("An unexpected error occurred.", err)
	}
	return ToSources(results, s.opts.SnippetLength), nil
}

// Reindex rebuilds and publishes the snapshot, then drops cached answers.
func (s *Service) Reindex(ctx context.Context) (*ReindexResult, error) {
	snap, stats, err := s.index.Rebuild(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(err)
		}
		return nil, cerrors.New(cerrors.CodeIndexFailed, "Reindexing failed.", err)
	}
	s.cache.Purge()
	return &ReindexResult{
		Files:      snap.Files(),
		Chunks:     snap.Len(),
		Skipped:    stats.Skipped,
		Excluded:   stats.Excluded,
		Version:    snap.Version(),
		DurationMs: stats.Duration.Milliseconds(),
	}, nil
}

// Health reports index, cache and synthesizer state. It is degraded when the
// synthesizer is unreachable or the cache has grown past DegradedCacheSize.
func (s *Service) Health(ctx context.Context) Health {
	snap := s.index.Current()
	h := Health{
		Status: StatusHealthy,
		Synthesizer: SynthesizerHealth{
			Name:      s.synth.Name(),
			Available: s.synth.Available(ctx),
		},
		Index: IndexHealth{
			Chunks:  snap.Len(),
			Files:   snap.Files(),
			Version: snap.Version(),
			BuiltAt: snap.BuiltAt(),
		},
		Cache:     s.cache.Stats(),
		Timestamp: s.now().UTC(),
	}
	if b, ok := s.synth.(interface {
		Breaker() *cerrors.CircuitBreaker
	}); ok {
		h.Synthesizer.Circuit = b.Breaker().State().String()
	}
	if !h.Synthesizer.Available || h.Cache.Size >= DegradedCacheSize {
		h.Status = StatusDegraded
	}
	return h
}

func (s *Service) record(ctx context.Context, e Event) {
	if s.rec == nil {
		return
	}
	if err := s.rec.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Debug("telemetry_record_failed", slog.String("error", err.Error()))
	}
}

func cancelled(err error) *cerrors.ChatError {
	if errors.Is(err, context.DeadlineExceeded) {
		return cerrors.New(cerrors.CodeRequestCancelled, "Request timed out.", err)
	}
	return cerrors.New(cerrors.CodeRequestCancelled, "Request was cancelled.", err)
}
