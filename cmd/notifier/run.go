// cmd/notifier/run.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run a single job once under its lease",
		Long: `Run one job immediately and exit. Intended for external triggers
such as cron. Use "notifier jobs" to list the job names.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), *configPath, args[0])
		},
	}
}

func runJob(parent context.Context, configPath, name string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.connectPostgres(ctx); err != nil {
		return err
	}
	if err := a.connectRedis(ctx); err != nil {
		return err
	}

	sched, err := a.buildScheduler(ctx)
	if err != nil {
		return err
	}

	if err := sched.RunOnce(ctx, name); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	a.zap.Info("Job finished", zap.String("job", name))
	return nil
}
