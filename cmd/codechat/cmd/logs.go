package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codechat/internal/logging"
	"github.com/Aman-CERP/codechat/internal/output"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	file    string
}

func newLogsCmd(opts *globalOptions) *cobra.Command {
	lo := logsOptions{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show server logs",
		Long: `Show the last lines of the server log (logging.file), optionally
following new records like 'tail -f'.`,
		Example: `  codechat logs -n 100
  codechat logs -f --level warn
  codechat logs --filter "request_id"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lo.file == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				lo.file = cfg.Logging.File
			}
			if lo.file == "" {
				lo.file = logging.DefaultLogPath()
			}
			return runLogs(cmd, lo)
		},
	}

	cmd.Flags().BoolVarP(&lo.follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lo.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&lo.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&lo.filter, "filter", "", "Only show lines matching this regular expression")
	cmd.Flags().BoolVar(&lo.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&lo.file, "file", "", "Log file (default: logging.file)")
	return cmd
}

func runLogs(cmd *cobra.Command, lo logsOptions) error {
	var pattern *regexp.Regexp
	if lo.filter != "" {
		var err error
		if pattern, err = regexp.Compile(lo.filter); err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   lo.level,
		Pattern: pattern,
		NoColor: lo.noColor || !output.New(out).Color(),
	}, out)

	entries, err := viewer.Tail(lo.file, lo.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)
	if !lo.follow {
		return nil
	}

	ctx := cmd.Context()
	ch := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Follow(ctx, lo.file, ch) }()

	for {
		select {
		case e := <-ch:
			_, _ = fmt.Fprintln(out, viewer.FormatEntry(e))
		case err := <-errCh:
			return err
		}
	}
}
