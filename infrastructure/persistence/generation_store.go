package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/generation"
	"github.com/helixml/codeframe/domain/repository"
	"github.com/helixml/codeframe/internal/database"
)

// GenerationStore implements generation.Store using GORM.
type GenerationStore struct {
	database.Repository[generation.Generation, GenerationModel]
}

// NewGenerationStore creates a new GenerationStore.
func NewGenerationStore(db database.Database) GenerationStore {
	return GenerationStore{
		Repository: database.NewRepository[generation.Generation, GenerationModel](db, GenerationMapper{}, "generation"),
	}
}

// Create inserts a pending generation. The partial unique index on active
// statuses turns a second active generation for the category into
// domain.ErrGenerationInProgress.
func (s GenerationStore) Create(ctx context.Context, g generation.Generation) (generation.Generation, error) {
	model := s.Mapper().ToModel(g)
	if err := s.DB(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return generation.Generation{}, fmt.Errorf("%w: category %d", domain.ErrGenerationInProgress, g.CategoryID())
		}
		return generation.Generation{}, fmt.Errorf("create generation: %w", err)
	}
	return s.Mapper().ToDomain(model), nil
}

// Get retrieves a generation by ID.
func (s GenerationStore) Get(ctx context.Context, id int64) (generation.Generation, error) {
	g, err := s.FindOne(ctx, repository.WithID(id))
	if err != nil {
		return generation.Generation{}, fmt.Errorf("get generation %d: %w", id, err)
	}
	return g, nil
}

// Transition persists g if the stored status is still from.
func (s GenerationStore) Transition(ctx context.Context, from generation.Status, g generation.Generation) (generation.Generation, error) {
	model := s.Mapper().ToModel(g)
	updatedAt := model.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	result := s.DB(ctx).Model(&GenerationModel{}).
		Where("id = ? AND status = ?", g.ID(), string(from)).
		Updates(map[string]any{
			"status":       model.Status,
			"error_detail": model.ErrorDetail,
			"n_themes":     model.NThemes,
			"n_codes":      model.NCodes,
			"total_jobs":   model.TotalJobs,
			"completed_at": model.CompletedAt,
			"updated_at":   updatedAt,
		})
	if result.Error != nil {
		return generation.Generation{}, fmt.Errorf("transition generation %d: %w", g.ID(), result.Error)
	}

	current, err := s.Get(ctx, g.ID())
	if err != nil {
		return generation.Generation{}, err
	}
	if result.RowsAffected == 0 {
		return current, fmt.Errorf("%w: generation %d is %s, expected %s",
			domain.ErrInvalidTransition, g.ID(), current.Status(), from)
	}
	return current, nil
}

// Active returns the category's non-terminal generation, if any.
func (s GenerationStore) Active(ctx context.Context, categoryID int64) (generation.Generation, bool, error) {
	g, err := s.FindOne(ctx,
		repository.WithCategoryID(categoryID),
		generation.WithStatusIn(generation.ActiveStatuses()...),
	)
	if errors.Is(err, domain.ErrNotFound) {
		return generation.Generation{}, false, nil
	}
	if err != nil {
		return generation.Generation{}, false, err
	}
	return g, true, nil
}
