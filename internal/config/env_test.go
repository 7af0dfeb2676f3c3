package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite:///codeframe.db", cfg.DBURL)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "llm", cfg.AssignmentClassifier)
	assert.False(t, cfg.EmbeddingEndpoint.IsConfigured())
	assert.False(t, cfg.LabelingEndpoint.IsConfigured())
}

func TestEnvDefaults_MatchConfigDefaults(t *testing.T) {
	// Struct tag defaults must be literals, so they are checked against the constants.
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDBURL, cfg.DBURL)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultCacheLRUSize, cfg.CacheLRUSize)
	assert.Equal(t, DefaultCacheRedisTTL, cfg.CacheRedisTTL)
	assert.Equal(t, DefaultWorkerCount, cfg.WorkerCount)
	assert.Equal(t, DefaultWorkerPollInterval, cfg.WorkerPollInterval)
	assert.Equal(t, DefaultWorkerLeaseDuration, cfg.WorkerLeaseDuration)
	assert.Equal(t, DefaultJobMaxAttempts, cfg.JobMaxAttempts)
	assert.Equal(t, DefaultJobRetryInitialDelay, cfg.JobRetryInitialDelay)
	assert.Equal(t, DefaultJobRetryMaxDelay, cfg.JobRetryMaxDelay)
	assert.Equal(t, DefaultMinAnswers, cfg.MinAnswers)
	assert.Equal(t, DefaultMaxExamplesPerCluster, cfg.MaxExamplesPerCluster)
	assert.Equal(t, string(DefaultAssignmentClassifierKind), cfg.AssignmentClassifier)
	assert.Equal(t, DefaultAssignmentParallelism, cfg.AssignmentParallelism)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultGenerationStartTimeout, cfg.GenerationStartTimeout)
	assert.Equal(t, DefaultGenerationStaleAfter, cfg.GenerationStaleAfter)

	assert.Equal(t, DefaultEndpointTimeout.Seconds(), cfg.EmbeddingEndpoint.Timeout)
	assert.Equal(t, DefaultEndpointMaxRetries, cfg.EmbeddingEndpoint.MaxRetries)
	assert.Equal(t, DefaultEndpointMaxBatchSize, cfg.EmbeddingEndpoint.MaxBatchSize)
	assert.Equal(t, DefaultEndpointParallelTasks, cfg.EmbeddingEndpoint.NumParallelTasks)
	assert.Equal(t, DefaultEndpointMaxTokens, cfg.LabelingEndpoint.MaxTokens)
}

func TestLoadFromEnv_OverrideValues(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_URL", "postgres://user:pass@db/codeframe")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("CACHE_REDIS_TTL", "1h")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("WORKER_LEASE_DURATION", "90s")
	t.Setenv("JOB_MAX_ATTEMPTS", "3")
	t.Setenv("MIN_ANSWERS", "20")
	t.Setenv("ASSIGNMENT_CLASSIFIER", "Embedding")
	t.Setenv("REQUEST_TIMEOUT", "30s")
	t.Setenv("GENERATION_START_TIMEOUT", "20m")
	t.Setenv("GENERATION_STALE_AFTER", "2h")

	env, err := LoadFromEnv()
	require.NoError(t, err)
	cfg := env.ToAppConfig()

	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, "postgres://user:pass@db/codeframe", cfg.DBURL())
	assert.Equal(t, LogFormatJSON, cfg.LogFormat())
	assert.Equal(t, "redis://cache:6379/0", cfg.Cache().RedisURL())
	assert.Equal(t, time.Hour, cfg.Cache().RedisTTL())
	assert.Equal(t, 8, cfg.Worker().Count())
	assert.Equal(t, 90*time.Second, cfg.Worker().LeaseDuration())
	assert.Equal(t, 3, cfg.Worker().MaxAttempts())
	assert.Equal(t, 20, cfg.Pipeline().MinAnswers())
	assert.Equal(t, ClassifierEmbedding, cfg.Pipeline().Classifier())
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 20*time.Minute, cfg.Pipeline().StartTimeout())
	assert.Equal(t, 2*time.Hour, cfg.Pipeline().StaleAfter())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv_InvalidDuration(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("WORKER_POLL_INTERVAL", "soon")

	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestLoadFromEnv_Endpoints(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("EMBEDDING_ENDPOINT_BASE_URL", "http://embed:8000/v1")
	t.Setenv("EMBEDDING_ENDPOINT_MODEL", "text-embedding-3-small")
	t.Setenv("EMBEDDING_ENDPOINT_API_KEY", "sk-embed")
	t.Setenv("EMBEDDING_ENDPOINT_TIMEOUT", "2.5")
	t.Setenv("EMBEDDING_ENDPOINT_MAX_BATCH_SIZE", "128")
	t.Setenv("EMBEDDING_ENDPOINT_REQUESTS_PER_SECOND", "4")
	t.Setenv("LABELING_ENDPOINT_MODEL", "gpt-4o-mini")
	t.Setenv("LABELING_ENDPOINT_MAX_TOKENS", "2048")

	env, err := LoadFromEnv()
	require.NoError(t, err)
	cfg := env.ToAppConfig()

	embed := cfg.EmbeddingEndpoint()
	require.NotNil(t, embed)
	assert.Equal(t, "http://embed:8000/v1", embed.BaseURL())
	assert.Equal(t, "text-embedding-3-small", embed.Model())
	assert.Equal(t, "sk-embed", embed.APIKey())
	assert.Equal(t, 2500*time.Millisecond, embed.Timeout())
	assert.Equal(t, 128, embed.MaxBatchSize())
	assert.Equal(t, 4.0, embed.RequestsPerSecond())

	labeling := cfg.LabelingEndpoint()
	require.NotNil(t, labeling)
	assert.Equal(t, "gpt-4o-mini", labeling.Model())
	assert.Equal(t, 2048, labeling.MaxTokens())
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		input string
		want  LogFormat
	}{
		{"json", LogFormatJSON},
		{" JSON ", LogFormatJSON},
		{"pretty", LogFormatPretty},
		{"", LogFormatPretty},
		{"other", LogFormatPretty},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogFormat(tt.input))
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := `LOG_LEVEL=DEBUG
MIN_ANSWERS=12
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))
	clearEnvVars(t)

	require.NoError(t, LoadDotEnv(envFile))

	assert.Equal(t, "DEBUG", os.Getenv("LOG_LEVEL"))
	assert.Equal(t, "12", os.Getenv("MIN_ANSWERS"))
}

func TestLoadDotEnv_NonExistent(t *testing.T) {
	clearEnvVars(t)
	assert.NoError(t, LoadDotEnv("/nonexistent/.env"))
}

func TestLoadConfig(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := `LOG_LEVEL=warn
EMBEDDING_ENDPOINT_MODEL=test-embedding
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))
	clearEnvVars(t)
	t.Setenv("LOG_LEVEL", "ERROR")

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, "ERROR", cfg.LogLevel(), "the environment wins over the file")
	require.NotNil(t, cfg.EmbeddingEndpoint())
	assert.Equal(t, "test-embedding", cfg.EmbeddingEndpoint().Model())
}

func TestLoadConfig_RejectsUnknownClassifier(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("ASSIGNMENT_CLASSIFIER", "magic")

	_, err := LoadConfig("/nonexistent/.env")
	assert.Error(t, err)
}

// clearEnvVars unsets every variable the config reads. t.Setenv restores
// the original values when the test ends.
func clearEnvVars(t *testing.T) {
	t.Helper()

	vars := []string{
		"HOST", "PORT", "DB_URL", "LOG_LEVEL", "LOG_FORMAT",
		"REDIS_URL", "CACHE_LRU_SIZE", "CACHE_REDIS_TTL",
		"WORKER_COUNT", "WORKER_POLL_INTERVAL", "WORKER_LEASE_DURATION",
		"JOB_MAX_ATTEMPTS", "JOB_RETRY_INITIAL_DELAY", "JOB_RETRY_MAX_DELAY",
		"MIN_ANSWERS", "MAX_EXAMPLES_PER_CLUSTER",
		"ASSIGNMENT_CLASSIFIER", "ASSIGNMENT_PARALLELISM",
		"REQUEST_TIMEOUT", "GENERATION_START_TIMEOUT", "GENERATION_STALE_AFTER",
	}
	for _, prefix := range []string{"EMBEDDING_ENDPOINT_", "LABELING_ENDPOINT_"} {
		for _, name := range []string{
			"BASE_URL", "MODEL", "API_KEY", "TIMEOUT", "MAX_RETRIES",
			"MAX_BATCH_SIZE", "NUM_PARALLEL_TASKS", "REQUESTS_PER_SECOND", "MAX_TOKENS",
		} {
			vars = append(vars, prefix+name)
		}
	}

	for _, v := range vars {
		t.Setenv(v, "")
		_ = os.Unsetenv(v)
	}
}
