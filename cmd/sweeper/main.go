// Command sweeper runs the claim staleness sweep once and exits. The server
// runs the same sweep on a schedule; this binary exists for cron-style
// deployments and manual runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"crisispulse/internal/claims"
	"crisispulse/internal/config"
	"crisispulse/internal/infrastructure"
	"crisispulse/internal/metrics"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "overall sweep timeout")
	flag.Parse()

	if err := run(*timeout); err != nil {
		fmt.Fprintf(os.Stderr, "sweeper: %v\n", err)
		os.Exit(1)
	}
}

func run(timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := infrastructure.MustInitializeLogger(cfg.Logging)
	defer infrastructure.CloseLogFile()

	db, err := infrastructure.OpenDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	tracker := claims.NewTracker(db, nil, cfg.Claims, metrics.New(), logger)
	swept, err := tracker.SweepStale(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	logger.Info("sweep finished", slog.Int("claims_swept", swept))
	return nil
}
