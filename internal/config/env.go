package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use underscore delimiter (e.g., EMBEDDING_ENDPOINT_BASE_URL).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DBURL is the database connection URL.
	// Env: DB_URL (default: sqlite:///codeframe.db)
	DBURL string `envconfig:"DB_URL" default:"sqlite:///codeframe.db"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// RedisURL enables the Redis cache tier.
	// Env: REDIS_URL
	RedisURL string `envconfig:"REDIS_URL"`

	// CacheLRUSize is the in-process cache capacity; 0 disables it.
	// Env: CACHE_LRU_SIZE (default: 10000)
	CacheLRUSize int `envconfig:"CACHE_LRU_SIZE" default:"10000"`

	// CacheRedisTTL is how long vectors live in Redis.
	// Env: CACHE_REDIS_TTL (default: 168h)
	CacheRedisTTL time.Duration `envconfig:"CACHE_REDIS_TTL" default:"168h"`

	// EmbeddingEndpoint configures the embedding service.
	EmbeddingEndpoint EndpointEnv `envconfig:"EMBEDDING_ENDPOINT"`

	// LabelingEndpoint configures the chat service used for labels.
	LabelingEndpoint EndpointEnv `envconfig:"LABELING_ENDPOINT"`

	// WorkerCount is the number of concurrent job workers.
	// Env: WORKER_COUNT (default: 2)
	WorkerCount int `envconfig:"WORKER_COUNT" default:"2"`

	// WorkerPollInterval is how often idle workers look for jobs.
	// Env: WORKER_POLL_INTERVAL (default: 1s)
	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"1s"`

	// WorkerLeaseDuration is how long a claimed job stays leased.
	// Env: WORKER_LEASE_DURATION (default: 5m)
	WorkerLeaseDuration time.Duration `envconfig:"WORKER_LEASE_DURATION" default:"5m"`

	// JobMaxAttempts is the attempt budget of new jobs.
	// Env: JOB_MAX_ATTEMPTS (default: 5)
	JobMaxAttempts int `envconfig:"JOB_MAX_ATTEMPTS" default:"5"`

	// JobRetryInitialDelay is the delay before a failed job's first retry.
	// Env: JOB_RETRY_INITIAL_DELAY (default: 10s)
	JobRetryInitialDelay time.Duration `envconfig:"JOB_RETRY_INITIAL_DELAY" default:"10s"`

	// JobRetryMaxDelay caps the retry delay.
	// Env: JOB_RETRY_MAX_DELAY (default: 10m)
	JobRetryMaxDelay time.Duration `envconfig:"JOB_RETRY_MAX_DELAY" default:"10m"`

	// MinAnswers is the fewest usable answers a generation may run on.
	// Env: MIN_ANSWERS (default: 5)
	MinAnswers int `envconfig:"MIN_ANSWERS" default:"5"`

	// MaxExamplesPerCluster is the default number of representatives.
	// Env: MAX_EXAMPLES_PER_CLUSTER (default: 8)
	MaxExamplesPerCluster int `envconfig:"MAX_EXAMPLES_PER_CLUSTER" default:"8"`

	// AssignmentClassifier is llm or embedding.
	// Env: ASSIGNMENT_CLASSIFIER (default: llm)
	AssignmentClassifier string `envconfig:"ASSIGNMENT_CLASSIFIER" default:"llm"`

	// AssignmentParallelism bounds concurrent classifier calls.
	// Env: ASSIGNMENT_PARALLELISM (default: 4)
	AssignmentParallelism int `envconfig:"ASSIGNMENT_PARALLELISM" default:"4"`

	// RequestTimeout is the deadline of ordinary API requests.
	// Env: REQUEST_TIMEOUT (default: 60s)
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`

	// GenerationStartTimeout bounds a start request through clustering.
	// Env: GENERATION_START_TIMEOUT (default: 15m)
	GenerationStartTimeout time.Duration `envconfig:"GENERATION_START_TIMEOUT" default:"15m"`

	// GenerationStaleAfter is how long a pre-labeling generation may sit
	// unchanged before workers recover or fail it.
	// Env: GENERATION_STALE_AFTER (default: 1h)
	GenerationStaleAfter time.Duration `envconfig:"GENERATION_STALE_AFTER" default:"1h"`
}

// EndpointEnv holds environment configuration for an AI endpoint.
type EndpointEnv struct {
	// BaseURL is the base URL for the endpoint.
	// Env: *_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the model identifier.
	// Env: *_MODEL
	Model string `envconfig:"MODEL"`

	// APIKey is the API key for authentication.
	// Env: *_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: *_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum number of retries.
	// Env: *_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`

	// MaxBatchSize is the maximum number of texts per request.
	// Env: *_MAX_BATCH_SIZE (default: 64)
	MaxBatchSize int `envconfig:"MAX_BATCH_SIZE" default:"64"`

	// NumParallelTasks is the number of requests in flight.
	// Env: *_NUM_PARALLEL_TASKS (default: 2)
	NumParallelTasks int `envconfig:"NUM_PARALLEL_TASKS" default:"2"`

	// RequestsPerSecond throttles requests; 0 is unlimited.
	// Env: *_REQUESTS_PER_SECOND (default: 0)
	RequestsPerSecond float64 `envconfig:"REQUESTS_PER_SECOND" default:"0"`

	// MaxTokens is the completion token limit.
	// Env: *_MAX_TOKENS (default: 1024)
	MaxTokens int `envconfig:"MAX_TOKENS" default:"1024"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	return LoadFromEnvWithPrefix("")
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "CODEFRAME" would require CODEFRAME_DB_URL instead of DB_URL.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	opts := []AppConfigOption{
		WithHost(e.Host),
		WithLogLevel(strings.ToUpper(strings.TrimSpace(e.LogLevel))),
		WithLogFormat(parseLogFormat(e.LogFormat)),
		WithCacheConfig(NewCacheConfig().
			WithRedisURL(e.RedisURL).
			WithLRUSize(e.CacheLRUSize).
			WithRedisTTL(e.CacheRedisTTL)),
		WithWorkerCount(e.WorkerCount),
		WithWorkerTiming(e.WorkerPollInterval, e.WorkerLeaseDuration),
		WithJobRetry(e.JobMaxAttempts, e.JobRetryInitialDelay, e.JobRetryMaxDelay),
		WithMinAnswers(e.MinAnswers),
		WithMaxExamplesPerCluster(e.MaxExamplesPerCluster),
		WithClassifier(ClassifierKind(strings.ToLower(strings.TrimSpace(e.AssignmentClassifier)))),
		WithAssignmentParallelism(e.AssignmentParallelism),
		WithRequestTimeout(e.RequestTimeout),
		WithGenerationTimeouts(e.GenerationStartTimeout, e.GenerationStaleAfter),
	}
	if e.Port != 0 {
		opts = append(opts, WithPort(e.Port))
	}
	if e.DBURL != "" {
		opts = append(opts, WithDBURL(e.DBURL))
	}
	if e.EmbeddingEndpoint.IsConfigured() {
		opts = append(opts, WithEmbeddingEndpoint(e.EmbeddingEndpoint.ToEndpoint()))
	}
	if e.LabelingEndpoint.IsConfigured() {
		opts = append(opts, WithLabelingEndpoint(e.LabelingEndpoint.ToEndpoint()))
	}
	return NewAppConfigWithOptions(opts...)
}

// IsConfigured returns true if the endpoint has a model configured.
func (e EndpointEnv) IsConfigured() bool {
	return e.Model != ""
}

// ToEndpoint converts EndpointEnv to Endpoint.
func (e EndpointEnv) ToEndpoint() Endpoint {
	return NewEndpointWithOptions(
		WithBaseURL(e.BaseURL),
		WithModel(e.Model),
		WithAPIKey(e.APIKey),
		WithTimeout(time.Duration(e.Timeout*float64(time.Second))),
		WithMaxRetries(e.MaxRetries),
		WithMaxBatchSize(e.MaxBatchSize),
		WithNumParallelTasks(e.NumParallelTasks),
		WithRequestsPerSecond(e.RequestsPerSecond),
		WithMaxTokens(e.MaxTokens),
	)
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
