package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codechat/configs"
	"github.com/Aman-CERP/codechat/internal/config"
	"github.com/Aman-CERP/codechat/internal/output"
)

func newInitCmd(opts *globalOptions) *cobra.Command {
	var (
		force    bool
		defaults bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a .codechat.yaml for the project",
		Long: `Write .codechat.yaml to the project directory.

By default the commented template is written. With --defaults the
current built-in defaults are written as plain YAML instead.`,
		Example: `  codechat init
  codechat init --force --defaults`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := opts.projectDir()
			if err != nil {
				return err
			}
			return runInit(cmd, dir, force, defaults)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write the built-in defaults instead of the template")
	return cmd
}

func runInit(cmd *cobra.Command, dir string, force, defaults bool) error {
	out := output.New(cmd.OutOrStdout())
	path := filepath.Join(dir, config.ProjectConfigName)

	if _, err := os.Stat(path); err == nil && !force {
		out.Warningf("%s already exists (use --force to overwrite)", path)
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}

	if defaults {
		if err := config.NewConfig().WriteYAML(path); err != nil {
			return err
		}
	} else if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Successf("Wrote %s", path)
	return nil
}
