package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codechat/internal/output"
	"github.com/Aman-CERP/codechat/internal/server"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running server",
		Long: `Stop the server started with 'codechat serve'.

Sends SIGTERM to the server process; it finishes in-flight requests
before exiting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStop(cmd, server.NewPIDFile(pidFilePath()))
		},
	}
}

func runStop(cmd *cobra.Command, pid *server.PIDFile) error {
	out := output.New(cmd.OutOrStdout())
	n, err := pid.Stop()
	if errors.Is(err, server.ErrNotRunning) {
		out.Status("", "Server is not running")
		return nil
	}
	if err != nil {
		return err
	}
	out.Successf("Sent stop signal to server (pid %d)", n)
	return nil
}
