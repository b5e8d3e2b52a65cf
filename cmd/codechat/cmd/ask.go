package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codechat/internal/chat"
	"github.com/Aman-CERP/codechat/internal/output"
)

// cliIdentity is the rate limit identity of local CLI requests.
const cliIdentity = "cli:local"

func newAskCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the codebase",
		Long: `Index the project, answer one question and print the answer with its
sources and suggested follow-up questions.

Use synthesis.provider: extractive (or CODECHAT_PROVIDER=extractive) to
answer without a model.`,
		Example: `  codechat ask "How is the grade average calculated?"
  codechat ask --json "Where are students loaded?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
				return err
			}

			resp, err := a.service.Ask(ctx, chat.Query{
				Question: strings.Join(args, " "),
				Identity: cliIdentity,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			output.New(cmd.OutOrStdout()).Answer(resp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the response as JSON")
	return cmd
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the code most relevant to a query",
		Long: `Index the project and print the top-ranked snippets for a query without
generating an answer. Useful for tuning retrieval settings.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			a, err := newApp(ctx, cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if _, err := a.buildIndex(ctx); err != nil {
				return err
			}

			sources, err := a.service.Search(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				if sources == nil {
					sources = []chat.Source{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sources)
			}
			output.New(cmd.OutOrStdout()).Sources(sources)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of results (default: retrieval.top_k)")
	return cmd
}
