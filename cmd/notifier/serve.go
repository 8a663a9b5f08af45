// cmd/notifier/serve.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rating-notifier/internal/api"
	"rating-notifier/internal/common/auth"
)

func serveCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.address)")
	return cmd
}

func runServe(parent context.Context, configPath, addr string) error {
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

	a.zap.Info("Starting rating notifier...", zap.String("version", Version))

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

	srv := api.New(api.Dependencies{
		Handles:       a.registry,
		Notifications: a.outbox,
		Verifier:      auth.NewVerifier(a.cfg.Webhook.SigningKey, a.cfg.Auth.Token),
		Checks: map[string]api.Pinger{
			"postgres": a.pg,
			"redis":    a.redis,
		},
		Logger: a.log,
	})

	if addr == "" {
		addr = a.cfg.HTTP.Address
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Listen(addr)
	}()

	sched.Start(ctx)
	a.zap.Info("Scheduler started", zap.Strings("jobs", sched.Jobs()))

	select {
	case <-ctx.Done():
		a.zap.Info("Shutdown signal received, stopping...")
	case err := <-serveErr:
		a.zap.Error("HTTP server failed", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.zap.Error("Error stopping HTTP server", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		a.zap.Error("Error stopping scheduler", zap.Error(err))
	}

	a.zap.Info("Rating notifier stopped gracefully")
	return nil
}
