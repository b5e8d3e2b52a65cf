// Package cmd provides the CLI commands for codechat.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codechat/internal/config"
	cerrors "github.com/Aman-CERP/codechat/internal/errors"
	"github.com/Aman-CERP/codechat/internal/logging"
	"github.com/Aman-CERP/codechat/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	project    string
	configFile string
	roots      []string
	debug      bool
}

// NewRootCmd creates the root command for the codechat CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "codechat",
		Short: "Ask questions about a codebase",
		Long: `codechat indexes a source tree and answers natural-language questions
about it, citing the files each answer is based on.

Serve the HTTP API with 'codechat serve', expose it to editors with
'codechat mcp', or ask directly with 'codechat ask'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("codechat version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.project, "project", "p", "", "Project directory (default: current directory)")
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Config file (default: .codechat.yaml in the project)")
	cmd.PersistentFlags().StringSliceVar(&opts.roots, "root", nil, "Source root to index, repeatable (overrides index.roots)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to stderr")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newMCPCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newAskCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newLogsCmd(opts))
	cmd.AddCommand(newInitCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with a context cancelled on SIGINT or
// SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), cerrors.FormatForCLI(err))
	}
	return err
}

// projectDir returns the absolute project directory.
func (o *globalOptions) projectDir() (string, error) {
	dir := o.project
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	return filepath.Abs(dir)
}

// loadConfig loads configuration and resolves index roots against the
// project directory.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	dir, err := o.projectDir()
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if o.configFile != "" {
		cfg, err = config.LoadFile(o.configFile)
	} else {
		cfg, err = config.Load(dir)
	}
	if err != nil {
		return nil, cerrors.ConfigError("Configuration is invalid.", err).
			WithSuggestion("Check .codechat.yaml or run 'codechat init --force'.")
	}

	if len(o.roots) > 0 {
		cfg.Index.Roots = o.roots
	}
	for i, r := range cfg.Index.Roots {
		if !filepath.IsAbs(r) {
			cfg.Index.Roots[i] = filepath.Join(dir, r)
		}
	}
	if o.debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogging installs the configured JSON logger as the default. Records
// reach stderr only when stderr is true; stdout is never used.
func setupLogging(cfg *config.Config, stderr bool) (*slog.Logger, func(), error) {
	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: stderr,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)
	return logger, cleanup, nil
}
