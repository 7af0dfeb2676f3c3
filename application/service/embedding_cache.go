package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/helixml/codeframe/domain/answer"
	"github.com/helixml/codeframe/domain/embedding"
)

// EmbeddingCache looks vectors up in the in-process and shared tiers before
// the database, backfilling the faster tiers with whatever a slower one had.
// Tier errors are logged and treated as misses; database errors fail.
type EmbeddingCache struct {
	store  embedding.Store
	tiers  []embedding.Tier
	logger *slog.Logger
}

// NewEmbeddingCache creates a cache over the durable store. Tiers are
// consulted in the given order.
func NewEmbeddingCache(store embedding.Store, logger *slog.Logger, tiers ...embedding.Tier) *EmbeddingCache {
	return &EmbeddingCache{
		store:  store,
		tiers:  tiers,
		logger: logger,
	}
}

// Lookup partitions answers into cached vectors and answers still needing
// an embedding. Hits require an exact hash match under modelID.
func (c *EmbeddingCache) Lookup(ctx context.Context, modelID string, answers []answer.Answer) (embedding.Lookup, error) {
	keys := make([]embedding.Key, len(answers))
	for i, a := range answers {
		keys[i] = embedding.Key{TextHash: embedding.HashText(a.Text()), ModelID: modelID}
	}

	found, err := c.Get(ctx, keys)
	if err != nil {
		return embedding.Lookup{}, err
	}

	result := embedding.Lookup{Cached: make(map[int64][]float64, len(found))}
	for i, a := range answers {
		if v, ok := found[keys[i]]; ok {
			result.Cached[a.ID()] = v
			continue
		}
		result.Missing = append(result.Missing, a.ID())
	}
	return result, nil
}

// Get returns the vectors found for keys. Missing keys are omitted.
func (c *EmbeddingCache) Get(ctx context.Context, keys []embedding.Key) (map[embedding.Key][]float64, error) {
	found := make(map[embedding.Key][]float64, len(keys))
	remaining := uniqueKeys(keys)

	for i, tier := range c.tiers {
		if len(remaining) == 0 {
			return found, nil
		}
		hits, err := tier.GetMany(ctx, remaining)
		if err != nil {
			c.logger.Warn("embedding cache tier failed, treating as miss",
				slog.String("tier", tier.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(hits) == 0 {
			continue
		}
		for k, v := range hits {
			found[k] = v
		}
		c.backfill(ctx, c.tiers[:i], entriesFrom(hits))
		remaining = without(remaining, hits)
	}
	if len(remaining) == 0 {
		return found, nil
	}

	byModel := make(map[string][]string)
	for _, k := range remaining {
		byModel[k.ModelID] = append(byModel[k.ModelID], k.TextHash)
	}
	models := make([]string, 0, len(byModel))
	for m := range byModel {
		models = append(models, m)
	}
	sort.Strings(models)

	var loaded []embedding.Entry
	for _, model := range models {
		entries, err := c.store.FindByHashes(ctx, model, byModel[model])
		if err != nil {
			return nil, fmt.Errorf("load cached embeddings: %w", err)
		}
		loaded = append(loaded, entries...)
	}
	for _, e := range loaded {
		found[e.Key()] = e.Vector()
	}
	c.backfill(ctx, c.tiers, loaded)
	return found, nil
}

// Store persists entries, overwriting existing keys, then writes them
// through to every tier.
func (c *EmbeddingCache) Store(ctx context.Context, entries []embedding.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := c.store.SaveAll(ctx, entries); err != nil {
		return fmt.Errorf("save embeddings: %w", err)
	}
	c.backfill(ctx, c.tiers, entries)
	return nil
}

func (c *EmbeddingCache) backfill(ctx context.Context, tiers []embedding.Tier, entries []embedding.Entry) {
	if len(entries) == 0 {
		return
	}
	for _, tier := range tiers {
		if err := tier.SetMany(ctx, entries); err != nil {
			c.logger.Warn("failed to fill embedding cache tier",
				slog.String("tier", tier.Name()),
				slog.Int("entries", len(entries)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func uniqueKeys(keys []embedding.Key) []embedding.Key {
	seen := make(map[embedding.Key]bool, len(keys))
	out := make([]embedding.Key, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func without(keys []embedding.Key, hits map[embedding.Key][]float64) []embedding.Key {
	out := keys[:0:0]
	for _, k := range keys {
		if _, ok := hits[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

func entriesFrom(hits map[embedding.Key][]float64) []embedding.Entry {
	out := make([]embedding.Entry, 0, len(hits))
	for k, v := range hits {
		out = append(out, embedding.NewEntry(k.TextHash, k.ModelID, v))
	}
	return out
}
