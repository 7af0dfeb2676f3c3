// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost                     = "0.0.0.0"
	DefaultPort                     = 8080
	DefaultDBURL                    = "sqlite:///codeframe.db"
	DefaultLogLevel                 = "INFO"
	DefaultCacheLRUSize             = 10000
	DefaultCacheRedisTTL            = 7 * 24 * time.Hour
	DefaultEndpointTimeout          = 60 * time.Second
	DefaultEndpointMaxRetries       = 5
	DefaultEndpointMaxBatchSize     = 64
	DefaultEndpointParallelTasks    = 2
	DefaultEndpointMaxTokens        = 1024
	DefaultWorkerCount              = 2
	DefaultWorkerPollInterval       = time.Second
	DefaultWorkerLeaseDuration      = 5 * time.Minute
	DefaultJobMaxAttempts           = 5
	DefaultJobRetryInitialDelay     = 10 * time.Second
	DefaultJobRetryMaxDelay         = 10 * time.Minute
	DefaultMinAnswers               = 5
	DefaultMaxExamplesPerCluster    = 8
	DefaultAssignmentParallelism    = 4
	DefaultAssignmentClassifierKind = ClassifierLLM
	DefaultRequestTimeout           = 60 * time.Second
	DefaultGenerationStartTimeout   = 15 * time.Minute
	DefaultGenerationStaleAfter     = time.Hour
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// ClassifierKind selects how answers are scored against codes.
type ClassifierKind string

// ClassifierKind values.
const (
	ClassifierLLM       ClassifierKind = "llm"
	ClassifierEmbedding ClassifierKind = "embedding"
)

// Endpoint configures an OpenAI-compatible service endpoint.
type Endpoint struct {
	baseURL           string
	model             string
	apiKey            string
	timeout           time.Duration
	maxRetries        int
	maxBatchSize      int
	numParallelTasks  int
	requestsPerSecond float64
	maxTokens         int
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		timeout:          DefaultEndpointTimeout,
		maxRetries:       DefaultEndpointMaxRetries,
		maxBatchSize:     DefaultEndpointMaxBatchSize,
		numParallelTasks: DefaultEndpointParallelTasks,
		maxTokens:        DefaultEndpointMaxTokens,
	}
}

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count for transient failures.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// MaxBatchSize returns the maximum texts per embedding request.
func (e Endpoint) MaxBatchSize() int { return e.maxBatchSize }

// NumParallelTasks returns how many requests may be in flight.
func (e Endpoint) NumParallelTasks() int { return e.numParallelTasks }

// RequestsPerSecond returns the request rate limit. Zero means unlimited.
func (e Endpoint) RequestsPerSecond() float64 { return e.requestsPerSecond }

// MaxTokens returns the completion token limit.
func (e Endpoint) MaxTokens() int { return e.maxTokens }

// IsConfigured returns true if the endpoint has a model configured.
func (e Endpoint) IsConfigured() bool {
	return e.model != ""
}

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithMaxBatchSize sets the maximum texts per embedding request.
func WithMaxBatchSize(n int) EndpointOption {
	return func(e *Endpoint) {
		if n > 0 {
			e.maxBatchSize = n
		}
	}
}

// WithNumParallelTasks sets the parallel request count.
func WithNumParallelTasks(n int) EndpointOption {
	return func(e *Endpoint) {
		if n > 0 {
			e.numParallelTasks = n
		}
	}
}

// WithRequestsPerSecond sets the request rate limit.
func WithRequestsPerSecond(rps float64) EndpointOption {
	return func(e *Endpoint) {
		if rps >= 0 {
			e.requestsPerSecond = rps
		}
	}
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int) EndpointOption {
	return func(e *Endpoint) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// CacheConfig configures the embedding cache tiers in front of the database.
type CacheConfig struct {
	redisURL string
	lruSize  int
	redisTTL time.Duration
}

// NewCacheConfig creates a CacheConfig with defaults and no Redis tier.
func NewCacheConfig() CacheConfig {
	return CacheConfig{lruSize: DefaultCacheLRUSize, redisTTL: DefaultCacheRedisTTL}
}

// RedisURL returns the Redis URL, empty when the tier is disabled.
func (c CacheConfig) RedisURL() string { return c.redisURL }

// LRUSize returns the in-process tier capacity. Zero disables the tier.
func (c CacheConfig) LRUSize() int { return c.lruSize }

// RedisTTL returns how long vectors live in Redis.
func (c CacheConfig) RedisTTL() time.Duration { return c.redisTTL }

// WithRedisURL returns a copy using the given Redis URL.
func (c CacheConfig) WithRedisURL(url string) CacheConfig {
	c.redisURL = strings.TrimSpace(url)
	return c
}

// WithLRUSize returns a copy with the given LRU capacity.
func (c CacheConfig) WithLRUSize(n int) CacheConfig {
	if n >= 0 {
		c.lruSize = n
	}
	return c
}

// WithRedisTTL returns a copy with the given Redis TTL.
func (c CacheConfig) WithRedisTTL(d time.Duration) CacheConfig {
	if d > 0 {
		c.redisTTL = d
	}
	return c
}

// WorkerConfig configures the job workers and retry policy.
type WorkerConfig struct {
	count             int
	pollInterval      time.Duration
	leaseDuration     time.Duration
	maxAttempts       int
	retryInitialDelay time.Duration
	retryMaxDelay     time.Duration
}

// NewWorkerConfig creates a WorkerConfig with defaults.
func NewWorkerConfig() WorkerConfig {
	return WorkerConfig{
		count:             DefaultWorkerCount,
		pollInterval:      DefaultWorkerPollInterval,
		leaseDuration:     DefaultWorkerLeaseDuration,
		maxAttempts:       DefaultJobMaxAttempts,
		retryInitialDelay: DefaultJobRetryInitialDelay,
		retryMaxDelay:     DefaultJobRetryMaxDelay,
	}
}

// Count returns the number of concurrent workers per process.
func (w WorkerConfig) Count() int { return w.count }

// PollInterval returns how often idle workers look for jobs.
func (w WorkerConfig) PollInterval() time.Duration { return w.pollInterval }

// LeaseDuration returns how long a claimed job stays leased without a heartbeat.
func (w WorkerConfig) LeaseDuration() time.Duration { return w.leaseDuration }

// MaxAttempts returns the attempt budget of new jobs.
func (w WorkerConfig) MaxAttempts() int { return w.maxAttempts }

// RetryInitialDelay returns the delay before the first retry.
func (w WorkerConfig) RetryInitialDelay() time.Duration { return w.retryInitialDelay }

// RetryMaxDelay returns the retry delay cap.
func (w WorkerConfig) RetryMaxDelay() time.Duration { return w.retryMaxDelay }

// PipelineConfig configures the generation and assignment stages.
type PipelineConfig struct {
	minAnswers            int
	maxExamplesPerCluster int
	classifier            ClassifierKind
	assignmentParallelism int
	startTimeout          time.Duration
	staleAfter            time.Duration
}

// NewPipelineConfig creates a PipelineConfig with defaults.
func NewPipelineConfig() PipelineConfig {
	return PipelineConfig{
		minAnswers:            DefaultMinAnswers,
		maxExamplesPerCluster: DefaultMaxExamplesPerCluster,
		classifier:            DefaultAssignmentClassifierKind,
		assignmentParallelism: DefaultAssignmentParallelism,
		startTimeout:          DefaultGenerationStartTimeout,
		staleAfter:            DefaultGenerationStaleAfter,
	}
}

// MinAnswers returns the fewest usable answers a generation may run on.
func (p PipelineConfig) MinAnswers() int { return p.minAnswers }

// MaxExamplesPerCluster returns the default representatives per cluster.
func (p PipelineConfig) MaxExamplesPerCluster() int { return p.maxExamplesPerCluster }

// Classifier returns the assignment classifier kind.
func (p PipelineConfig) Classifier() ClassifierKind { return p.classifier }

// AssignmentParallelism returns how many answers are classified at once.
func (p PipelineConfig) AssignmentParallelism() int { return p.assignmentParallelism }

// StartTimeout bounds how long starting a generation may run before its
// label jobs are enqueued.
func (p PipelineConfig) StartTimeout() time.Duration { return p.startTimeout }

// StaleAfter returns how long a pre-labeling generation may sit unchanged
// before workers settle it.
func (p PipelineConfig) StaleAfter() time.Duration { return p.staleAfter }

// AppConfig holds the main application configuration.
type AppConfig struct {
	host              string
	port              int
	dbURL             string
	logLevel          string
	logFormat         LogFormat
	requestTimeout    time.Duration
	cache             CacheConfig
	embeddingEndpoint *Endpoint
	labelingEndpoint  *Endpoint
	worker            WorkerConfig
	pipeline          PipelineConfig
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	return AppConfig{
		host:           DefaultHost,
		port:           DefaultPort,
		dbURL:          DefaultDBURL,
		logLevel:       DefaultLogLevel,
		logFormat:      LogFormatPretty,
		requestTimeout: DefaultRequestTimeout,
		cache:          NewCacheConfig(),
		worker:         NewWorkerConfig(),
		pipeline:       NewPipelineConfig(),
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// RequestTimeout returns the deadline of ordinary API requests.
func (c AppConfig) RequestTimeout() time.Duration { return c.requestTimeout }

// Cache returns the embedding cache config.
func (c AppConfig) Cache() CacheConfig { return c.cache }

// EmbeddingEndpoint returns the embedding endpoint config.
func (c AppConfig) EmbeddingEndpoint() *Endpoint { return c.embeddingEndpoint }

// LabelingEndpoint returns the chat endpoint used for labels and LLM classification.
func (c AppConfig) LabelingEndpoint() *Endpoint { return c.labelingEndpoint }

// Worker returns the worker config.
func (c AppConfig) Worker() WorkerConfig { return c.worker }

// Pipeline returns the pipeline config.
func (c AppConfig) Pipeline() PipelineConfig { return c.pipeline }

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithRequestTimeout sets the deadline of ordinary API requests.
func WithRequestTimeout(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithCacheConfig sets the cache config.
func WithCacheConfig(cache CacheConfig) AppConfigOption {
	return func(c *AppConfig) { c.cache = cache }
}

// WithEmbeddingEndpoint sets the embedding endpoint.
func WithEmbeddingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.embeddingEndpoint = &e }
}

// WithLabelingEndpoint sets the labeling endpoint.
func WithLabelingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.labelingEndpoint = &e }
}

// WithWorkerCount sets the number of workers.
func WithWorkerCount(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.worker.count = n
		}
	}
}

// WithWorkerTiming sets the poll interval and lease duration of workers.
func WithWorkerTiming(poll, lease time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if poll > 0 {
			c.worker.pollInterval = poll
		}
		if lease > 0 {
			c.worker.leaseDuration = lease
		}
	}
}

// WithJobRetry sets the attempt budget and retry delays of jobs.
func WithJobRetry(maxAttempts int, initial, maxDelay time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if maxAttempts > 0 {
			c.worker.maxAttempts = maxAttempts
		}
		if initial > 0 {
			c.worker.retryInitialDelay = initial
		}
		if maxDelay > 0 {
			c.worker.retryMaxDelay = maxDelay
		}
	}
}

// WithMinAnswers sets the fewest usable answers a generation may run on.
func WithMinAnswers(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.pipeline.minAnswers = n
		}
	}
}

// WithMaxExamplesPerCluster sets the default representatives per cluster.
func WithMaxExamplesPerCluster(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.pipeline.maxExamplesPerCluster = n
		}
	}
}

// WithClassifier selects the assignment classifier.
func WithClassifier(kind ClassifierKind) AppConfigOption {
	return func(c *AppConfig) { c.pipeline.classifier = kind }
}

// WithAssignmentParallelism sets how many answers are classified at once.
func WithAssignmentParallelism(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.pipeline.assignmentParallelism = n
		}
	}
}

// WithGenerationTimeouts sets the start deadline and the stale threshold
// of generations.
func WithGenerationTimeouts(start, staleAfter time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if start > 0 {
			c.pipeline.startTimeout = start
		}
		if staleAfter > 0 {
			c.pipeline.staleAfter = staleAfter
		}
	}
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	return NewAppConfig().Apply(opts...)
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Validate checks settings that cannot be caught by type conversion alone.
func (c AppConfig) Validate() error {
	switch c.pipeline.classifier {
	case ClassifierLLM, ClassifierEmbedding:
	default:
		return fmt.Errorf("unknown assignment classifier %q", c.pipeline.classifier)
	}
	if c.worker.retryMaxDelay < c.worker.retryInitialDelay {
		return fmt.Errorf("job retry max delay %s is below initial delay %s",
			c.worker.retryMaxDelay, c.worker.retryInitialDelay)
	}
	if c.pipeline.staleAfter <= c.pipeline.startTimeout {
		return fmt.Errorf("generation stale threshold %s must exceed the start timeout %s",
			c.pipeline.staleAfter, c.pipeline.startTimeout)
	}
	return nil
}

// LogAttrs returns slog attributes for logging the configuration.
// Secrets are never included.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("addr", c.Addr()),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.Bool("redis_cache", c.cache.redisURL != ""),
		slog.Int("lru_size", c.cache.lruSize),
		slog.String("embedding_base_url", endpointBaseURL(c.embeddingEndpoint)),
		slog.String("embedding_model", endpointModel(c.embeddingEndpoint)),
		slog.String("labeling_base_url", endpointBaseURL(c.labelingEndpoint)),
		slog.String("labeling_model", endpointModel(c.labelingEndpoint)),
		slog.Int("worker_count", c.worker.count),
		slog.Int("job_max_attempts", c.worker.maxAttempts),
		slog.String("classifier", string(c.pipeline.classifier)),
		slog.Duration("request_timeout", c.requestTimeout),
		slog.Duration("generation_stale_after", c.pipeline.staleAfter),
	}
}

func (c AppConfig) maskedDBURL() string {
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	return "postgres://***@***"
}

func endpointBaseURL(e *Endpoint) string {
	if e == nil {
		return "(not configured)"
	}
	return e.BaseURL()
}

func endpointModel(e *Endpoint) string {
	if e == nil {
		return "(not configured)"
	}
	return e.Model()
}
