package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codechat/internal/output"
	"github.com/Aman-CERP/codechat/internal/telemetry"
)

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		since      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show request statistics recorded by the server",
		Long: `Summarize requests stored in the telemetry database: outcomes, error
codes, cache hit rate and latency. Identities are stored hashed.`,
		Example: `  codechat stats
  codechat stats --since 168h --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Telemetry.Enabled {
				output.New(cmd.OutOrStdout()).Warning("Telemetry is disabled (telemetry.enabled: false)")
				return nil
			}

			store, err := telemetry.Open(cmd.Context(), cfg.Telemetry.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sum, err := store.Summary(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			printSummary(output.New(cmd.OutOrStdout()), sum, since)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "How far back to look")
	return cmd
}

func printSummary(out *output.Writer, sum *telemetry.Summary, since time.Duration) {
	out.Header(fmt.Sprintf("Requests in the last %s", since))
	out.KeyValue("total", sum.Total)
	if sum.Total == 0 {
		return
	}
	out.KeyValue("identities", sum.Identities)
	out.KeyValue("cache hits", fmt.Sprintf("%.1f%%", sum.CacheHitRate*100))
	out.KeyValue("avg", fmt.Sprintf("%.0fms", sum.AvgDurationMs))
	out.KeyValue("p95", fmt.Sprintf("%dms", sum.P95DurationMs))

	out.Newline()
	out.Header("Outcomes")
	for _, k := range sortedKeys(sum.Outcomes) {
		out.KeyValue(k, sum.Outcomes[k])
	}
	if len(sum.Codes) > 0 {
		out.Newline()
		out.Header("Errors")
		for _, k := range sortedKeys(sum.Codes) {
			out.KeyValue(k, sum.Codes[k])
		}
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
