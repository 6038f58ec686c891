package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/outpost-qa/rfdebug/dap"
	"github.com/outpost-qa/rfdebug/runner"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var sessionLog string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a DAP session over stdio and run a suite under it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), sessionLog)
		},
	}
	cmd.Flags().StringVar(&sessionLog, "session-log", "", "write the debug session id to this path")
	return cmd
}

func runServe(ctx context.Context, sessionLog string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	adapter := dap.NewAdapter()
	if sessionLog != "" {
		if err := os.WriteFile(sessionLog, []byte(adapter.SessionID.String()+"\n"), 0o644); err != nil {
			logrus.Warnf("rfdap: could not write session log: %v", err)
		}
	}

	conn := dap.NewConn(os.Stdin, os.Stdout)
	defer conn.Close()

	serveErr := make(chan error, 1)
	go func() { serveErr <- adapter.Serve(ctx, conn) }()

	cfg, err := adapter.WaitLaunch(ctx)
	if err != nil {
		return errors.Wrap(err, "rfdap: waiting for launch")
	}

	s, err := runner.ParseSuite(cfg.SuitePath)
	if err != nil {
		return errors.Wrap(err, "rfdap: parsing suite")
	}

	watcher, err := runner.NewSuiteWatcher(adapter.Engine, cfg.SuitePath)
	if err != nil {
		logrus.Warnf("rfdap: suite watcher disabled: %v", err)
	} else {
		go func() {
			if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
				logrus.Warnf("rfdap: suite watcher stopped: %v", err)
			}
		}()
	}

	r := runner.NewRunner(adapter.Engine)
	runErr := r.Run(ctx, s)
	if runErr != nil {
		logrus.Warnf("rfdap: suite finished with an error: %v", runErr)
	}

	return <-serveErr
}
