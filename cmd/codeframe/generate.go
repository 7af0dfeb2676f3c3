package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixml/codeframe"
	"github.com/helixml/codeframe/application/service"
	"github.com/helixml/codeframe/infrastructure/api/v1/dto"
	"github.com/helixml/codeframe/internal/config"
)

func generateCmd() *cobra.Command {
	var (
		envFile    string
		configFile string
		actor      string
		wait       bool
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Start a codeframe generation",
		Long: `Start a codeframe generation described by a YAML file.

Without --wait the command returns once the label jobs are queued; a serve or
worker process picks them up. With --wait this process runs its own workers
and polls until the generation reaches a terminal status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), cmd.OutOrStdout(), envFile, configFile, actor, wait, interval)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&configFile, "config", "", "Path to the generation YAML file")
	cmd.Flags().StringVar(&actor, "actor", "", "Name recorded as the generation's creator")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the generation to finish")
	cmd.Flags().DurationVar(&interval, "poll-interval", 2*time.Second, "Status poll interval with --wait")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runGenerate(ctx context.Context, out io.Writer, envFile, configFile, actor string, wait bool, interval time.Duration) error {
	file, err := config.LoadGenerateFile(configFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	var extra []codeframe.Option
	if !wait {
		extra = append(extra, codeframe.WithoutWorker())
	}
	client, slogger, err := newClient(cfg, "generate", extra...)
	if err != nil {
		return err
	}
	defer closeClient(client, slogger)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline().StartTimeout())
	defer cancel()
	g, err := client.Generations.Start(startCtx, service.StartRequest{
		CategoryID:     file.CategoryID,
		AnswerIDs:      file.AnswerIDs,
		Config:         file.Algorithm,
		TargetLanguage: file.TargetLanguage,
		Actor:          actor,
	})
	if err != nil {
		return fmt.Errorf("start generation: %w", err)
	}
	if !wait {
		return printJSON(out, dto.GenerationStatusResponse{Data: dto.NewGenerationResponse(g)})
	}

	status, err := waitForGeneration(ctx, client, g.ID(), interval, slogger)
	if err != nil {
		return err
	}
	if err := printJSON(out, dto.GenerationStatusResponse{
		Data: dto.NewGenerationResponse(status.Generation),
		Jobs: status.Jobs,
	}); err != nil {
		return err
	}
	if status.Generation.Status().IsFailure() {
		return fmt.Errorf("generation %d %s: %s", g.ID(), status.Generation.Status(), status.Generation.ErrorDetail())
	}
	return nil
}

func waitForGeneration(ctx context.Context, client *codeframe.Client, id int64, interval time.Duration, logger *slog.Logger) (service.Status, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := client.Generations.Status(ctx, id)
		if err != nil {
			return service.Status{}, fmt.Errorf("generation status: %w", err)
		}
		if status.Generation.Status().IsTerminal() {
			return status, nil
		}
		logger.Info("waiting for generation",
			slog.Int64("generation_id", id),
			slog.String("status", string(status.Generation.Status())),
			slog.Int64("pending_jobs", status.Jobs.Pending()),
		)

		select {
		case <-ctx.Done():
			return service.Status{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func statusCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "status <generation-id>",
		Short: "Show a generation's status and job counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid generation id %q", args[0])
			}
			return runStatus(cmd.Context(), cmd.OutOrStdout(), envFile, id)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")

	return cmd
}

func runStatus(ctx context.Context, out io.Writer, envFile string, id int64) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	client, slogger, err := newClient(cfg, "status", codeframe.WithoutWorker(), codeframe.WithSkipProviderValidation())
	if err != nil {
		return err
	}
	defer closeClient(client, slogger)

	if ctx == nil {
		ctx = context.Background()
	}
	status, err := client.Generations.Status(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(out, dto.GenerationStatusResponse{
		Data: dto.NewGenerationResponse(status.Generation),
		Jobs: status.Jobs,
	})
}

func printJSON(out io.Writer, v any) error {
	if out == nil {
		out = os.Stdout
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
