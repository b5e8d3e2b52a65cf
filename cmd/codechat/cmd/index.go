package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codechat/internal/output"
	"github.com/Aman-CERP/codechat/internal/ui"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		noTUI      bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the index once and report what was indexed",
		Long: `Scan the configured roots, chunk every matching file and report the
result. Use it to check extensions and exclusions before serving.`,
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

			var appOpts appOptions
			var renderer ui.Renderer
			if !jsonOutput {
				dir, _ := opts.projectDir()
				renderer = ui.NewRenderer(ui.NewConfig(cmd.ErrOrStderr(),
					ui.WithForcePlain(noTUI),
					ui.WithTitle(dir)))
				if err := renderer.Start(ctx); err != nil {
					return err
				}
				defer func() { _ = renderer.Stop() }()
				renderer.UpdateProgress(ui.ProgressEvent{
					Stage:   ui.StageScanning,
					Message: fmt.Sprintf("Scanning %d root(s)", len(cfg.Index.Roots)),
				})
				appOpts.Progress = ui.ProgressFunc(renderer)
			}

			a, err := newApp(ctx, cfg, logger, appOpts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.buildIndex(ctx)
			if err != nil {
				return err
			}
			if renderer != nil {
				renderer.Complete(ui.CompletionStats{
					Files:    res.Files,
					Chunks:   res.Chunks,
					Skipped:  res.Skipped,
					Version:  res.Version,
					Duration: time.Duration(res.DurationMs) * time.Millisecond,
				})
				_ = renderer.Stop()
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			out := output.New(cmd.OutOrStdout())
			out.Successf("Indexed %d files into %d chunks in %dms", res.Files, res.Chunks, res.DurationMs)
			out.KeyValue("version", res.Version)
			out.KeyValue("skipped", res.Skipped)
			out.KeyValue("excluded", res.Excluded)
			for _, r := range cfg.Index.Roots {
				out.KeyValue("root", r)
			}
			if res.Chunks == 0 {
				out.Warning("Nothing was indexed; check index.roots and index.extensions")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Print plain progress lines instead of the live view")
	return cmd
}
