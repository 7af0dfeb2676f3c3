package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/answer"
	"github.com/helixml/codeframe/domain/embedding"
)

// Embedding stage defaults.
const (
	DefaultEmbeddingBatchSize   = 64
	DefaultEmbeddingParallelism = 2
	rateLimitRetries            = 6
	rateLimitInitialDelay       = time.Second
	rateLimitMaxDelay           = 30 * time.Second
)

// EmbeddingStats reports where the vectors of one request came from.
type EmbeddingStats struct {
	Requested int
	Cached    int
	Fresh     int
	Batches   int
}

// Embedding is the embedding stage: it serves vectors from the cache and
// asks the provider only for texts it has never seen under the model.
type Embedding struct {
	provider    embedding.Embedder
	modelID     string
	cache       *EmbeddingCache
	batchSize   int
	parallelism int
	limiter     *rate.Limiter
	retryDelay  time.Duration
	logger      *slog.Logger
}

// NewEmbedding creates the embedding stage for one provider model.
func NewEmbedding(provider embedding.Embedder, modelID string, cache *EmbeddingCache, logger *slog.Logger) *Embedding {
	return &Embedding{
		provider:    provider,
		modelID:     modelID,
		cache:       cache,
		batchSize:   DefaultEmbeddingBatchSize,
		parallelism: DefaultEmbeddingParallelism,
		limiter:     rate.NewLimiter(rate.Inf, 0),
		retryDelay:  rateLimitInitialDelay,
		logger:      logger,
	}
}

// WithBatchSize sets the maximum texts per provider request.
func (e *Embedding) WithBatchSize(n int) *Embedding {
	if n > 0 {
		e.batchSize = n
	}
	return e
}

// WithParallelism sets how many provider requests may be in flight.
func (e *Embedding) WithParallelism(n int) *Embedding {
	if n > 0 {
		e.parallelism = n
	}
	return e
}

// WithRequestsPerSecond throttles provider requests with a token bucket.
// Zero or less disables throttling.
func (e *Embedding) WithRequestsPerSecond(rps float64) *Embedding {
	if rps > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(rps), e.parallelism)
	} else {
		e.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return e
}

// ModelID returns the model the vectors are cached under.
func (e *Embedding) ModelID() string {
	return e.modelID
}

// Embed implements embedding.Embedder through the cache.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors, _, err := e.embed(ctx, texts)
	return vectors, err
}

// EmbedAnswers returns one vector per answer, keyed by answer id.
func (e *Embedding) EmbedAnswers(ctx context.Context, answers []answer.Answer) (map[int64][]float64, EmbeddingStats, error) {
	texts := make([]string, len(answers))
	for i, a := range answers {
		texts[i] = a.Text()
	}
	vectors, stats, err := e.embed(ctx, texts)
	if err != nil {
		return nil, stats, err
	}
	out := make(map[int64][]float64, len(answers))
	for i, a := range answers {
		out[a.ID()] = vectors[i]
	}
	return out, stats, nil
}

func (e *Embedding) embed(ctx context.Context, texts []string) ([][]float64, EmbeddingStats, error) {
	stats := EmbeddingStats{Requested: len(texts)}
	if len(texts) == 0 {
		return [][]float64{}, stats, nil
	}

	keys := make([]embedding.Key, len(texts))
	for i, t := range texts {
		keys[i] = embedding.Key{TextHash: embedding.HashText(t), ModelID: e.modelID}
	}

	cached, err := e.cache.Get(ctx, keys)
	if err != nil {
		return nil, stats, err
	}

	// Identical texts are embedded once.
	var missing []embedding.Key
	var missingTexts []string
	queued := make(map[embedding.Key]bool)
	for i, k := range keys {
		if _, ok := cached[k]; ok {
			stats.Cached++
			continue
		}
		if queued[k] {
			continue
		}
		queued[k] = true
		missing = append(missing, k)
		missingTexts = append(missingTexts, texts[i])
	}
	stats.Fresh = len(missing)

	fresh, batches, err := e.fetch(ctx, missing, missingTexts)
	stats.Batches = batches
	if err != nil {
		return nil, stats, err
	}
	for k, v := range fresh {
		cached[k] = v
	}

	vectors := make([][]float64, len(texts))
	for i, k := range keys {
		v, ok := cached[k]
		if !ok {
			return nil, stats, fmt.Errorf("%w: no vector for text %d", domain.ErrEmbeddingMismatch, i)
		}
		vectors[i] = v
	}
	if err := uniformDimension(vectors); err != nil {
		return nil, stats, err
	}

	e.logger.Debug("embedded texts",
		slog.Int("requested", stats.Requested),
		slog.Int("cached", stats.Cached),
		slog.Int("fresh", stats.Fresh),
		slog.Int("batches", stats.Batches),
	)
	return vectors, stats, nil
}

// fetch embeds the missing texts in bounded-parallel batches. Every batch
// that succeeds is written to the cache even when another batch fails.
func (e *Embedding) fetch(ctx context.Context, keys []embedding.Key, texts []string) (map[embedding.Key][]float64, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	type span struct{ start, end int }
	var spans []span
	for start := 0; start < len(texts); start += e.batchSize {
		spans = append(spans, span{start: start, end: min(start+e.batchSize, len(texts))})
	}

	results := make([][][]float64, len(spans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, s := range spans {
		g.Go(func() error {
			if err := e.limiter.Wait(gctx); err != nil {
				return err
			}
			vectors, err := e.requestBatch(gctx, texts[s.start:s.end])
			if err != nil {
				return fmt.Errorf("embedding batch %d: %w", i, err)
			}

			entries := make([]embedding.Entry, len(vectors))
			for j, v := range vectors {
				k := keys[s.start+j]
				entries[j] = embedding.NewEntry(k.TextHash, k.ModelID, v)
			}
			// The parent context keeps the save alive if a sibling batch fails.
			if err := e.cache.Store(ctx, entries); err != nil {
				return err
			}
			results[i] = vectors
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, len(spans), err
	}

	out := make(map[embedding.Key][]float64, len(texts))
	for i, s := range spans {
		for j, v := range results[i] {
			out[keys[s.start+j]] = v
		}
	}
	return out, len(spans), nil
}

// requestBatch calls the provider, backing off while it is rate limited.
func (e *Embedding) requestBatch(ctx context.Context, texts []string) ([][]float64, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryDelay
	b.MaxInterval = rateLimitMaxDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(b, rateLimitRetries), ctx)

	var vectors [][]float64
	err := backoff.RetryNotify(func() error {
		v, err := e.provider.Embed(ctx, texts)
		if errors.Is(err, domain.ErrRateLimited) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		vectors = v
		return nil
	}, policy, func(err error, d time.Duration) {
		e.logger.Warn("embedding provider rate limited, backing off",
			slog.Int("batch_size", len(texts)),
			slog.Duration("backoff", d),
		)
	})
	if err != nil {
		return nil, err
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d vectors, got %d", domain.ErrEmbeddingMismatch, len(texts), len(vectors))
	}
	if err := uniformDimension(vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

func uniformDimension(vectors [][]float64) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, expected %d", domain.ErrEmbeddingMismatch, i, len(v), dim)
		}
	}
	return nil
}
