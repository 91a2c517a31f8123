package main

import (
	"errors"
	"fmt"

	"qsar/internal/daemon"

	"github.com/spf13/cobra"
)

var stopPIDFile string

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a server started with --pid-file",
	Long: `Send SIGTERM to the server recorded in a PID file. The server stops
accepting, lets in-flight connections finish, flushes its logs and exits.

Examples:
  qsar stop --pid-file /run/qsar.pid`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopPIDFile, "pid-file", "", "PID file written by qsar serve")
	_ = stopCmd.MarkFlagRequired("pid-file")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	pid, err := daemon.NewPIDFile(stopPIDFile).Stop()
	if errors.Is(err, daemon.ErrNotRunning) {
		fmt.Fprintln(cmd.OutOrStdout(), "qsar is not running")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to qsar (PID %d)\n", pid)
	return nil
}
