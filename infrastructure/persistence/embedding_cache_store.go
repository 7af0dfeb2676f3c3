package persistence

import (
	"context"
	"fmt"

	"github.com/helixml/codeframe/domain/embedding"
	"github.com/helixml/codeframe/internal/database"
	"gorm.io/gorm/clause"
)

// lookupBatchSize bounds the IN list of a single cache lookup.
const lookupBatchSize = 500

// EmbeddingCacheStore implements embedding.Store using GORM.
type EmbeddingCacheStore struct {
	database.Repository[embedding.Entry, EmbeddingCacheModel]
}

// NewEmbeddingCacheStore creates a new EmbeddingCacheStore.
func NewEmbeddingCacheStore(db database.Database) EmbeddingCacheStore {
	return EmbeddingCacheStore{
		Repository: database.NewRepository[embedding.Entry, EmbeddingCacheModel](db, EmbeddingCacheMapper{}, "embedding cache entry"),
	}
}

// FindByHashes returns the cached entries for the given hashes under modelID.
func (s EmbeddingCacheStore) FindByHashes(ctx context.Context, modelID string, hashes []string) ([]embedding.Entry, error) {
	var entries []embedding.Entry
	for start := 0; start < len(hashes); start += lookupBatchSize {
		end := min(start+lookupBatchSize, len(hashes))

		var models []EmbeddingCacheModel
		err := s.DB(ctx).
			Where("model_id = ? AND text_hash IN ?", modelID, hashes[start:end]).
			Find(&models).Error
		if err != nil {
			return nil, fmt.Errorf("find cached embeddings: %w", err)
		}
		for _, m := range models {
			entries = append(entries, s.Mapper().ToDomain(m))
		}
	}
	return entries, nil
}

// SaveAll upserts entries. Writing the same key twice overwrites the vector,
// so concurrent writers computing the same hash are harmless.
func (s EmbeddingCacheStore) SaveAll(ctx context.Context, entries []embedding.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	// PostgreSQL rejects an upsert that touches the same row twice.
	seen := make(map[embedding.Key]int, len(entries))
	models := make([]EmbeddingCacheModel, 0, len(entries))
	for _, e := range entries {
		if i, ok := seen[e.Key()]; ok {
			models[i] = s.Mapper().ToModel(e)
			continue
		}
		seen[e.Key()] = len(models)
		models = append(models, s.Mapper().ToModel(e))
	}

	err := s.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "text_hash"}, {Name: "model_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vector", "dimension"}),
	}).CreateInBatches(&models, insertBatchSize).Error
	if err != nil {
		return fmt.Errorf("save embeddings: %w", err)
	}
	return nil
}
