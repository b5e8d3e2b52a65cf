package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/codechat/internal/cache"
	"github.com/Aman-CERP/codechat/internal/chat"
	"github.com/Aman-CERP/codechat/internal/chunk"
	"github.com/Aman-CERP/codechat/internal/config"
	cerrors "github.com/Aman-CERP/codechat/internal/errors"
	"github.com/Aman-CERP/codechat/internal/index"
	"github.com/Aman-CERP/codechat/internal/ratelimit"
	"github.com/Aman-CERP/codechat/internal/retrieve"
	"github.com/Aman-CERP/codechat/internal/synth"
	"github.com/Aman-CERP/codechat/internal/telemetry"
)

// recentEvents is how many requests the in-memory telemetry ring keeps.
const recentEvents = 256

// telemetryRetention is how long stored request events are kept.
const telemetryRetention = 30 * 24 * time.Hour

// app holds every long-lived component built from a Config.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	holder   *index.Holder
	cache    *chat.ResponseCache
	chatRL   *ratelimit.FixedWindow
	globalRL *ratelimit.FixedWindow
	limiter  *ratelimit.Chain
	synth    *synth.Guarded
	store    *telemetry.Store
	recent   *telemetry.Recent
	service  *chat.Service
}

// appOptions selects optional components.
type appOptions struct {
	// Telemetry opens the SQLite event store when enabled in config.
	Telemetry bool
	// Progress receives index build progress.
	Progress index.ProgressFunc
}

// newApp wires the chat service from cfg. The index starts empty; call
// service.Reindex to build it.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	builder := index.NewBuilder(index.Options{
		Roots:            cfg.Index.Roots,
		Extensions:       cfg.Index.Extensions,
		Exclude:          cfg.Index.Exclude,
		RespectGitignore: cfg.Index.RespectGitignore,
		MaxFileSize:      cfg.Index.MaxFileSize,
		Workers:          cfg.Index.Workers,
		Progress:         opts.Progress,
		Chunk: chunk.Options{
			Lines:      cfg.Index.ChunkLines,
			Overlap:    cfg.Index.ChunkOverlap,
			MaxChars:   cfg.Index.ChunkMaxChars,
			Structural: true,
		},
	}, logger)
	a.holder = index.NewHolder(builder, logger)

	scorer, err := retrieve.NewScorer(cfg.Retrieval.Scorer)
	if err != nil {
		return nil, cerrors.ConfigError("Unknown retrieval scorer.", err)
	}
	retriever := retrieve.New(a.holder, scorer, logger)

	a.cache, err = chat.NewResponseCache(cache.Options{
		Capacity: cfg.Cache.Capacity,
		TTL:      cfg.Cache.TTL.D(),
	})
	if err != nil {
		return nil, cerrors.ConfigError("Cache settings are invalid.", err)
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		a.chatRL = ratelimit.NewFixedWindow(limitOptions("chat", cfg.RateLimit.Chat))
		a.globalRL = ratelimit.NewFixedWindow(limitOptions("global", cfg.RateLimit.Global))
		a.limiter = ratelimit.NewChain(a.chatRL, a.globalRL)
		limiter = a.limiter
	}

	inner, err := synth.New(synth.Options{
		Provider: cfg.Synthesis.Provider,
		Host:     cfg.Synthesis.Host,
		Model:    cfg.Synthesis.Model,
	})
	if err != nil {
		return nil, cerrors.ConfigError("Unknown synthesis provider.", err)
	}
	breaker := cerrors.NewCircuitBreaker("synthesis",
		cerrors.WithMaxFailures(cfg.Synthesis.MaxFailures),
		cerrors.WithResetTimeout(cfg.Synthesis.ResetTimeout.D()))
	a.synth = synth.NewGuarded(inner, cfg.Synthesis.Timeout.D(), breaker)

	a.recent = telemetry.NewRecent(recentEvents)
	recorders := telemetry.Fanout{a.recent}
	if opts.Telemetry && cfg.Telemetry.Enabled {
		store, err := telemetry.Open(ctx, cfg.Telemetry.Path)
		if err != nil {
			// Telemetry is best effort; the service runs without it.
			logger.Warn("telemetry_unavailable",
				slog.String("path", cfg.Telemetry.Path),
				slog.String("error", err.Error()))
		} else {
			a.store = store
			recorders = append(recorders, store)
		}
	}

	a.service, err = chat.NewService(chat.Options{
		TopK:              cfg.Retrieval.TopK,
		ContextBudget:     cfg.Retrieval.ContextBudget,
		SnippetLength:     cfg.Retrieval.SnippetLength,
		MaxQuestionLength: cfg.Retrieval.MaxQuestionLength,
		CacheTTL:          cfg.Cache.TTL.D(),
		Sanitize:          cfg.Retrieval.Sanitize,
	}, chat.Deps{
		Index:       a.holder,
		Retriever:   retriever,
		Cache:       a.cache,
		Limiter:     limiter,
		Synthesizer: a.synth,
		Recorder:    recorders,
		Logger:      logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func limitOptions(name string, lc config.LimitConfig) ratelimit.Options {
	return ratelimit.Options{
		Name:        name,
		PermitLimit: lc.PermitLimit,
		Window:      lc.Window.D(),
		QueueLimit:  lc.QueueLimit,
	}
}

// runMaintenance sweeps expired cache entries, idle limiter buckets and old
// telemetry until ctx is cancelled.
func (a *app) runMaintenance(ctx context.Context) {
	interval := a.cfg.Cache.SweepInterval.D()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go a.cache.Run(ctx, interval)
	if a.limiter != nil {
		go a.limiter.Run(ctx, interval)
	}
	if a.store != nil {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				if n, err := a.store.Prune(ctx, time.Now().Add(-telemetryRetention)); err != nil {
					if ctx.Err() == nil {
						a.logger.Warn("telemetry_prune_failed", slog.String("error", err.Error()))
					}
				} else if n > 0 {
					a.logger.Info("telemetry_pruned", slog.Int64("events", n))
				}
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// buildIndex runs the initial index build.
func (a *app) buildIndex(ctx context.Context) (*chat.ReindexResult, error) {
	res, err := a.service.Reindex(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("index_ready",
		slog.Int("files", res.Files),
		slog.Int("chunks", res.Chunks),
		slog.String("version", res.Version))
	return res, nil
}

// Close releases the telemetry store.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
