package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/codechat/internal/config"
	"github.com/Aman-CERP/codechat/internal/server"
	"github.com/Aman-CERP/codechat/internal/watcher"
	"github.com/Aman-CERP/codechat/pkg/version"
)

// pidFilePath is where a running server records its process id.
func pidFilePath() string {
	return filepath.Join(config.DataDir(), "server.pid")
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat HTTP API",
		Long: `Index the project and serve the chat API:

  POST /api/chat/ask      {"question": "..."}
  GET  /api/chat/health
  POST /api/chat/reindex

The server stops gracefully on SIGINT or SIGTERM, or with 'codechat stop'.`,
		Example: `  codechat serve
  codechat serve --addr :9090 --watch
  codechat serve --root ./api --root ./web`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("watch") {
				cfg.Index.Watch = watch
			}
			return runServe(cmd.Context(), cfg, opts.debug)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reindex when source files change")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, debug bool) error {
	logger, cleanup, err := setupLogging(cfg, cfg.Logging.Stderr || debug)
	if err != nil {
		return err
	}
	defer cleanup()

	pid := server.NewPIDFile(pidFilePath())
	if err := pid.Claim(); err != nil {
		return err
	}
	defer func() {
		if err := pid.Release(); err != nil {
			logger.Warn("pidfile_release_failed", slog.String("error", err.Error()))
		}
	}()

	a, err := newApp(ctx, cfg, logger, appOptions{Telemetry: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	logger.Info("server_starting",
		slog.String("version", version.Version),
		slog.String("addr", cfg.Server.Addr),
		slog.Any("roots", cfg.Index.Roots),
		slog.String("scorer", cfg.Retrieval.Scorer),
		slog.String("synthesizer", a.synth.Name()),
		slog.Duration("write_timeout", cfg.EffectiveWriteTimeout()))

	if _, err := a.buildIndex(ctx); err != nil {
		// An empty or failed index is served as INDEX_EMPTY until a reindex
		// succeeds.
		logger.Error("initial_index_failed", slog.String("error", err.Error()))
	}

	g, gctx := errgroup.WithContext(ctx)
	a.runMaintenance(gctx)

	if cfg.Index.Watch {
		if err := startWatcher(gctx, g, cfg, a, logger); err != nil {
			return err
		}
	}

	srvOpts := server.Options{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout.D(),
		WriteTimeout:    cfg.EffectiveWriteTimeout(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout.D(),
		TrustProxy:      cfg.Server.TrustProxy,
	}
	if a.globalRL != nil {
		srvOpts.Global = a.globalRL
	}
	srv := server.New(a.service, srvOpts, logger)
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped: %w", err)
	}
	logger.Info("server_stopped")
	return nil
}

// startWatcher reindexes on source changes until ctx is cancelled.
func startWatcher(ctx context.Context, g *errgroup.Group, cfg *config.Config, a *app, logger *slog.Logger) error {
	w, err := watcher.New(watcher.Options{
		Roots:      cfg.Index.Roots,
		Extensions: cfg.Index.Extensions,
		Exclude:    cfg.Index.Exclude,
		Debounce:   cfg.Index.Debounce.D(),
	}, logger)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	reindexer := watcher.NewReindexer(w.Events(), watcher.Adapt(a.service.Reindex), logger)

	g.Go(func() error { return w.Start(ctx) })
	g.Go(func() error {
		reindexer.Run(ctx)
		return nil
	})
	return nil
}
