package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/codechat/internal/index"
	"github.com/Aman-CERP/codechat/internal/mcp"
)

func newMCPCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the codebase to MCP clients over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout.

Tools:
  ask_codebase   answer a question with sources and follow-ups
  search_code    return the most relevant snippets
  index_status   report index, cache and synthesizer state

Every indexed file is also exposed as a file:// resource.

Stdout carries JSON-RPC only; logs go to the log file.`,
		Example: `  # .mcp.json
  {"mcpServers": {"codechat": {"command": "codechat", "args": ["mcp"]}}}`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			logger, cleanup, err := setupLogging(cfg, opts.debug)
			if err != nil {
				return err
			}
			defer cleanup()

			a, err := newApp(ctx, cfg, logger, appOptions{Telemetry: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if _, err := a.buildIndex(ctx); err != nil {
				logger.Error("initial_index_failed", slog.String("error", err.Error()))
			}
			a.runMaintenance(ctx)

			mopts := mcp.Options{
				Roots:  cfg.Index.Roots,
				Recent: a.recent,
				Logger: logger,
			}
			if a.store != nil {
				mopts.Telemetry = a.store
			}
			srv, err := mcp.NewServer(a.service, a.holder, mopts)
			if err != nil {
				return err
			}
			a.holder.OnSwap(func(_, cur *index.Snapshot) { srv.SyncResources(cur) })

			// The session ends when the client closes stdin; stop the
			// watcher with it.
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)
			if cfg.Index.Watch {
				if err := startWatcher(gctx, g, cfg, a, logger); err != nil {
					return err
				}
			}
			g.Go(func() error {
				defer cancel()
				return srv.Serve(gctx, "stdio")
			})
			return g.Wait()
		},
	}
	return cmd
}
