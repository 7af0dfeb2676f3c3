package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixml/codeframe/infrastructure/api"
	"github.com/helixml/codeframe/internal/config"
)

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server and job workers",
		Long: `Start the HTTP API server together with the job workers.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                         Server host to bind to (default: 0.0.0.0)
  PORT                         Server port to listen on (default: 8080)
  DB_URL                       Database URL (default: sqlite:///codeframe.db)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)

  EMBEDDING_ENDPOINT_*         Embedding service configuration
    BASE_URL                   Base URL (e.g., https://api.openai.com/v1)
    MODEL                      Model identifier (e.g., text-embedding-3-small)
    API_KEY                    API key for authentication
    MAX_BATCH_SIZE             Texts per request (default: 64)
    NUM_PARALLEL_TASKS         Concurrent requests (default: 2)
    REQUESTS_PER_SECOND        Request rate limit, 0 is unlimited
    TIMEOUT                    Request timeout in seconds (default: 60)
    MAX_RETRIES                Retry attempts (default: 5)

  LABELING_ENDPOINT_*          Chat service used for labels and classification
    (same fields as EMBEDDING_ENDPOINT, plus MAX_TOKENS)

  REDIS_URL                    Enables the shared embedding cache tier
  CACHE_LRU_SIZE               In-process cache entries (default: 10000)
  CACHE_REDIS_TTL              Redis entry lifetime (default: 168h)

  WORKER_COUNT                 Concurrent job workers (default: 2)
  WORKER_POLL_INTERVAL         Idle poll interval (default: 1s)
  WORKER_LEASE_DURATION        Job lease length (default: 5m)
  JOB_MAX_ATTEMPTS             Attempts per job (default: 5)

  MIN_ANSWERS                  Fewest answers per generation (default: 5)
  MAX_EXAMPLES_PER_CLUSTER     Representatives per cluster (default: 8)
  ASSIGNMENT_CLASSIFIER        llm or embedding (default: llm)
  ASSIGNMENT_PARALLELISM       Concurrent classifier calls (default: 4)

  REQUEST_TIMEOUT              API request deadline (default: 60s)
  GENERATION_START_TIMEOUT     Deadline of a generation start (default: 15m)
  GENERATION_STALE_AFTER       Idle time before workers settle an unfinished
                               start (default: 1h)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(envFile, host string, port int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, host, port)

	client, slogger, err := newClient(cfg, "serve")
	if err != nil {
		return err
	}
	defer closeClient(client, slogger)

	apiServer := api.NewAPIServer(client, version).
		WithRequestTimeout(cfg.RequestTimeout()).
		WithStartTimeout(cfg.Pipeline().StartTimeout())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			slogger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	slogger.Info("worker running", slog.String("owner", client.WorkerOwner()))
	if err := apiServer.ListenAndServe(cfg.Addr()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}
