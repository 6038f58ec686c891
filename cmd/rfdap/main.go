// Command rfdap is a standalone Debug Adapter Protocol server for the toy
// Robot-style test suites in package runner. It speaks DAP over stdio,
// the same transport github.com/google/go-dap clients (VS Code, a
// headless test harness) expect, in the shape of the teacher's own
// "buildx dap" subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "rfdap",
		Short: "Debug Adapter Protocol server for Robot-style test suites",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	cmd.AddCommand(newServeCmd())
	return cmd
}
