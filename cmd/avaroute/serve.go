package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/server"
)

func serveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the routing service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g)
		},
	}
}

// runServe starts the service and blocks until ctx is cancelled, then
// shuts down within the configured timeout.
func runServe(ctx context.Context, g *globalFlags) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting avaroute",
		observability.String("version", version),
		observability.String("config", g.configPath),
	)

	tracer, err := initTracer(cfg.Tracing)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithVersion(version, gitCommit),
	}
	if cfg.Tracing.Enabled {
		opts = append(opts, server.WithTracer(tracer))
	}

	srv, err := server.New(ctx, cfg, opts...)
	if err != nil {
		_ = tracer.Shutdown(context.WithoutCancel(ctx))
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		_ = tracer.Shutdown(context.WithoutCancel(ctx))
		return fmt.Errorf("failed to start server: %w", err)
	}

	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
		errs = append(errs, err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
