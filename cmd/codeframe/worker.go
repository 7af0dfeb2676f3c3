package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helixml/codeframe/internal/config"
)

func workerCmd() *cobra.Command {
	var (
		envFile string
		count   int
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run job workers without the HTTP API",
		Long: `Run job workers against the shared database without serving HTTP.

Any number of worker processes may run beside a serve process; jobs are
leased so each one is handled by a single worker at a time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), envFile, count)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().IntVar(&count, "count", 0, "Concurrent workers (default: WORKER_COUNT)")

	return cmd
}

func runWorker(ctx context.Context, envFile string, count int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	if count > 0 {
		cfg = cfg.Apply(config.WithWorkerCount(count))
	}

	client, slogger, err := newClient(cfg, "worker")
	if err != nil {
		return err
	}
	defer closeClient(client, slogger)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slogger.Info("worker running",
		slog.String("owner", client.WorkerOwner()),
		slog.Int("count", cfg.Worker().Count()),
	)
	<-ctx.Done()
	slogger.Info("worker stopping")
	return nil
}
