// Command server runs the CrisisPulse core: the ingestion, claim, scoring
// and label API backing the monitoring dashboard.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"crisispulse/internal/app"
	"crisispulse/internal/config"
	"crisispulse/internal/infrastructure"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "crisispulse: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := infrastructure.MustInitializeLogger(cfg.Logging)
	defer infrastructure.CloseLogFile()

	a, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting crisispulse core",
		slog.String("version", app.Version),
		slog.Int("port", cfg.Server.Port),
		slog.String("database", cfg.Database.Path),
	)
	return a.Run(ctx)
}
