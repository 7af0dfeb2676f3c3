package codeframe

import (
	"io"
	"log/slog"
	"time"

	"github.com/helixml/codeframe/domain/assignment"
	"github.com/helixml/codeframe/domain/embedding"
	"github.com/helixml/codeframe/domain/label"
	"github.com/helixml/codeframe/internal/config"
)

// clientConfig holds configuration for Client construction.
// Defaults come from config.NewAppConfig.
type clientConfig struct {
	app                    config.AppConfig
	databaseSet            bool
	embedder               embedding.Embedder
	embeddingModel         string
	labeler                label.Labeler
	classifier             assignment.Classifier
	logger                 *slog.Logger
	runWorker              bool
	skipProviderValidation bool
	closers                []io.Closer
}

func newClientConfig() *clientConfig {
	return &clientConfig{
		app:       config.NewAppConfig(),
		runWorker: true,
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithConfig replaces the whole application configuration, typically one
// loaded from the environment. Options given after it still apply.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		c.app = cfg
		c.databaseSet = cfg.DBURL() != ""
	}
}

// WithDatabaseURL sets the database URL (sqlite:///path or postgres://...).
func WithDatabaseURL(url string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithDBURL(url))
		c.databaseSet = url != ""
	}
}

// WithSQLite configures SQLite at path as the database.
func WithSQLite(path string) Option {
	return WithDatabaseURL("sqlite:///" + path)
}

// WithPostgres configures PostgreSQL as the database.
func WithPostgres(dsn string) Option {
	return WithDatabaseURL(dsn)
}

// WithEmbeddingEndpoint configures the OpenAI-compatible embedding service.
func WithEmbeddingEndpoint(e config.Endpoint) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithEmbeddingEndpoint(e))
	}
}

// WithLabelingEndpoint configures the OpenAI-compatible chat service used
// for labels and LLM classification.
func WithLabelingEndpoint(e config.Endpoint) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithLabelingEndpoint(e))
	}
}

// WithEmbedder sets a custom embedder. Vectors are cached under modelID.
func WithEmbedder(e embedding.Embedder, modelID string) Option {
	return func(c *clientConfig) {
		c.embedder = e
		c.embeddingModel = modelID
	}
}

// WithLabeler sets a custom labeler.
func WithLabeler(l label.Labeler) Option {
	return func(c *clientConfig) {
		c.labeler = l
	}
}

// WithClassifier sets a custom assignment classifier.
func WithClassifier(cl assignment.Classifier) Option {
	return func(c *clientConfig) {
		c.classifier = cl
	}
}

// WithRedis enables the Redis cache tier.
func WithRedis(url string, ttl time.Duration) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithCacheConfig(c.app.Cache().WithRedisURL(url).WithRedisTTL(ttl)))
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithWorkerCount sets the number of concurrent job workers.
func WithWorkerCount(n int) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithWorkerCount(n))
	}
}

// WithWorkerPollPeriod sets how often idle workers look for jobs.
// Lower values speed up job processing in tests.
func WithWorkerPollPeriod(d time.Duration) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithWorkerTiming(d, c.app.Worker().LeaseDuration()))
	}
}

// WithoutWorker keeps the client from processing jobs. Jobs are still
// enqueued; a separate worker process picks them up.
func WithoutWorker() Option {
	return func(c *clientConfig) {
		c.runWorker = false
	}
}

// WithMinAnswers sets the fewest usable answers a generation may run on.
func WithMinAnswers(n int) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithMinAnswers(n))
	}
}

// WithSkipProviderValidation lets New succeed without embedding or labeling
// providers. Stages that need a missing provider fail when they run.
// This is intended for testing and read-only tools.
func WithSkipProviderValidation() Option {
	return func(c *clientConfig) {
		c.skipProviderValidation = true
	}
}

// WithCloser registers a resource to be closed when the Client shuts down.
func WithCloser(cl io.Closer) Option {
	return func(c *clientConfig) {
		c.closers = append(c.closers, cl)
	}
}
