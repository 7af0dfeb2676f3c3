// Package codeframe builds hierarchical codeframes from open-ended survey
// answers: it embeds the answers, clusters them, asks an LLM to label each
// cluster, lets analysts edit the resulting hierarchy, and applies the
// finished codeframe back to answers.
//
// Basic usage:
//
//	client, err := codeframe.New(
//	    codeframe.WithSQLite("codeframe.db"),
//	    codeframe.WithEmbeddingEndpoint(embeddingEndpoint),
//	    codeframe.WithLabelingEndpoint(labelingEndpoint),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	g, err := client.Generations.Start(ctx, service.StartRequest{CategoryID: 12})
//
//	// Label jobs run in the background; poll until finalized.
//	status, err := client.Generations.Status(ctx, g.ID())
package codeframe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/helixml/codeframe/application/handler"
	"github.com/helixml/codeframe/application/handler/assign"
	"github.com/helixml/codeframe/application/handler/label"
	"github.com/helixml/codeframe/application/service"
	"github.com/helixml/codeframe/domain/assignment"
	"github.com/helixml/codeframe/domain/embedding"
	domainlabel "github.com/helixml/codeframe/domain/label"
	"github.com/helixml/codeframe/infrastructure/cache"
	"github.com/helixml/codeframe/infrastructure/clustering"
	"github.com/helixml/codeframe/infrastructure/persistence"
	"github.com/helixml/codeframe/infrastructure/provider"
	"github.com/helixml/codeframe/internal/config"
	"github.com/helixml/codeframe/internal/database"
)

// Client is the main entry point for the codeframe library.
// Unless WithoutWorker is given, the job worker starts on creation.
//
// Access the pipeline via struct fields:
//
//	client.Answers.Import(ctx, categoryID, texts)
//	client.Generations.Start(ctx, req)
//	client.Hierarchy.Tree(ctx, generationID)
//	client.Assignments.Apply(ctx, req)
type Client struct {
	Answers     *service.Answer
	Generations *service.Generation
	Hierarchy   *service.Hierarchy
	Assignments *service.Assignment
	Jobs        *service.Queue

	db        database.Database
	worker    *service.Worker
	runWorker bool
	closers   []io.Closer
	logger    *slog.Logger
	closed    atomic.Bool
	mu        sync.Mutex
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.databaseSet {
		return nil, ErrNoDatabase
	}
	if err := cfg.app.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	embeddingEndpoint := cfg.app.EmbeddingEndpoint()
	labelingEndpoint := cfg.app.LabelingEndpoint()

	embedder, modelID := cfg.embedder, cfg.embeddingModel
	if embedder == nil && embeddingEndpoint != nil && embeddingEndpoint.IsConfigured() {
		p := provider.NewOpenAIProvider(openAIConfig(*embeddingEndpoint, logger))
		embedder, modelID = provider.NewTextEmbedder(p), p.EmbeddingModel()
	}

	var generator provider.TextGenerator
	if labelingEndpoint != nil && labelingEndpoint.IsConfigured() {
		generator = provider.NewOpenAIProvider(openAIConfig(*labelingEndpoint, logger))
	}

	labeler := cfg.labeler
	if labeler == nil && generator != nil {
		labeler = provider.NewLabeler(generator, logger).WithMaxTokens(labelingEndpoint.MaxTokens())
	}

	if !cfg.skipProviderValidation {
		if embedder == nil {
			return nil, ErrNoEmbeddingProvider
		}
		if labeler == nil {
			return nil, ErrNoLabelingProvider
		}
	}
	if embedder == nil {
		embedder, modelID = unavailable{what: "embedding"}, "unavailable"
	}
	if labeler == nil {
		labeler = unavailable{what: "labeling"}
	}

	ctx := context.Background()
	db, err := database.NewDatabase(ctx, cfg.app.DBURL())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := persistence.AutoMigrate(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), errClose)
	}
	if err := persistence.ValidateSchema(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("validate schema: %w", err), errClose)
	}

	closers := cfg.closers
	tiers, tierClosers, err := buildTiers(ctx, cfg.app.Cache(), logger)
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("cache tiers: %w", err), errClose)
	}
	closers = append(closers, tierClosers...)

	answerStore := persistence.NewAnswerStore(db)
	generationStore := persistence.NewGenerationStore(db)
	hierarchyStore := persistence.NewHierarchyStore(db)
	assignmentStore := persistence.NewAssignmentStore(db)
	jobStore := persistence.NewJobStore(db)
	cacheStore := persistence.NewEmbeddingCacheStore(db)

	embeddingCache := service.NewEmbeddingCache(cacheStore, logger, tiers...)
	embeddingStage := service.NewEmbedding(embedder, modelID, embeddingCache, logger)
	if embeddingEndpoint != nil {
		embeddingStage.
			WithBatchSize(embeddingEndpoint.MaxBatchSize()).
			WithParallelism(embeddingEndpoint.NumParallelTasks()).
			WithRequestsPerSecond(embeddingEndpoint.RequestsPerSecond())
	}
	clusteringStage := service.NewClustering(clustering.NewDensity(logger), logger)

	workerCfg := cfg.app.Worker()
	pipeline := cfg.app.Pipeline()
	queue := service.NewQueue(jobStore, logger).WithMaxAttempts(workerCfg.MaxAttempts())

	classifier := cfg.classifier
	if classifier == nil {
		classifier = buildClassifier(pipeline.Classifier(), generator, embeddingStage, logger)
	}

	generations := service.NewGeneration(
		generationStore, answerStore, hierarchyStore, embeddingStage, clusteringStage, queue, logger,
	).WithMinAnswers(pipeline.MinAnswers()).WithMaxExamples(pipeline.MaxExamplesPerCluster())

	assignments := service.NewAssignment(
		generationStore, answerStore, hierarchyStore, assignmentStore, classifier, queue, logger,
	).WithParallelism(pipeline.AssignmentParallelism())

	registry := handler.NewRegistry()
	label.NewCluster(generationStore, hierarchyStore, labeler, logger).Register(registry)
	assign.NewApply(assignments, logger).Register(registry)

	worker := service.NewWorker(jobStore, registry, logger).
		WithPollPeriod(workerCfg.PollInterval()).
		WithConcurrency(workerCfg.Count()).
		WithLeaseDuration(workerCfg.LeaseDuration()).
		WithRetryDelays(workerCfg.RetryInitialDelay(), workerCfg.RetryMaxDelay()).
		WithSweep(func(ctx context.Context) error {
			_, err := generations.RecoverStale(ctx, pipeline.StaleAfter())
			return err
		})

	client := &Client{
		Answers:     service.NewAnswer(answerStore, logger),
		Generations: generations,
		Hierarchy:   service.NewHierarchy(hierarchyStore, generationStore, logger),
		Assignments: assignments,
		Jobs:        queue,
		db:          db,
		worker:      worker,
		runWorker:   cfg.runWorker,
		closers:     closers,
		logger:      logger,
	}

	if cfg.runWorker {
		worker.Start(ctx)
	}

	return client, nil
}

// Close stops the worker and releases all resources.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runWorker {
		c.worker.Stop()
	}

	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	c.logger.Info("codeframe client closed")
	return nil
}

// Health reports whether the database is reachable.
func (c *Client) Health(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	sqlDB, err := c.db.GORM().DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WorkerOwner returns the lease owner id of this client's worker.
func (c *Client) WorkerOwner() string {
	return c.worker.Owner()
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

func openAIConfig(e config.Endpoint, logger *slog.Logger) provider.OpenAIConfig {
	return provider.OpenAIConfig{
		APIKey:         e.APIKey(),
		BaseURL:        e.BaseURL(),
		ChatModel:      e.Model(),
		EmbeddingModel: e.Model(),
		Timeout:        e.Timeout(),
		MaxRetries:     e.MaxRetries(),
		Logger:         logger,
	}
}

// buildTiers creates the best-effort cache tiers in lookup order.
func buildTiers(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) ([]embedding.Tier, []io.Closer, error) {
	var tiers []embedding.Tier
	var closers []io.Closer
	if cfg.LRUSize() > 0 {
		lru, err := cache.NewLRU(cfg.LRUSize())
		if err != nil {
			return nil, nil, err
		}
		tiers = append(tiers, lru)
	}
	if cfg.RedisURL() != "" {
		redis, err := cache.NewRedis(ctx, cfg.RedisURL(), cfg.RedisTTL(), logger)
		if err != nil {
			return nil, nil, err
		}
		tiers = append(tiers, redis)
		closers = append(closers, redis)
	}
	return tiers, closers, nil
}

func buildClassifier(
	kind config.ClassifierKind,
	generator provider.TextGenerator,
	embedder embedding.Embedder,
	logger *slog.Logger,
) assignment.Classifier {
	if kind == config.ClassifierEmbedding {
		return provider.NewEmbeddingClassifier(embedder)
	}
	if generator == nil {
		return unavailable{what: "classification"}
	}
	return provider.NewLLMClassifier(generator, logger)
}

// unavailable stands in for a provider that was not configured.
type unavailable struct {
	what string
}

func (u unavailable) err() error {
	return fmt.Errorf("%s provider not configured", u.what)
}

func (u unavailable) Embed(context.Context, []string) ([][]float64, error) {
	return nil, u.err()
}

func (u unavailable) Label(context.Context, domainlabel.Request) (domainlabel.Label, error) {
	return domainlabel.Label{}, u.err()
}

func (u unavailable) Classify(context.Context, string, []assignment.Candidate) ([]assignment.Score, error) {
	return nil, u.err()
}
