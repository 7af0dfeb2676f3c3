package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helixml/codeframe"
	"github.com/helixml/codeframe/internal/config"
	"github.com/helixml/codeframe/internal/log"
)

// newClient builds a codeframe.Client from cfg, logging the effective
// settings first. Callers pass entrypoint-specific options such as
// codeframe.WithoutWorker.
func newClient(cfg config.AppConfig, entrypoint string, extra ...codeframe.Option) (*codeframe.Client, *slog.Logger, error) {
	slogger := log.NewLogger(cfg).Slog()

	attrs := append([]slog.Attr{
		slog.String("version", version),
		slog.String("entrypoint", entrypoint),
	}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting codeframe", attrs...)

	opts := append([]codeframe.Option{
		codeframe.WithConfig(cfg),
		codeframe.WithLogger(slogger),
	}, extra...)

	client, err := codeframe.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create codeframe client: %w", err)
	}
	return client, slogger, nil
}

func closeClient(client *codeframe.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Error("failed to close codeframe client", slog.Any("error", err))
	}
}
