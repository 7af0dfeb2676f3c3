package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/answer"
	"github.com/helixml/codeframe/domain/repository"
)

// Answer manages the survey answers that generations run on.
type Answer struct {
	store  answer.Store
	logger *slog.Logger
}

// NewAnswer creates the answer service.
func NewAnswer(store answer.Store, logger *slog.Logger) *Answer {
	return &Answer{store: store, logger: logger}
}

// Import stores texts as answers of the category. Blank texts are dropped.
func (s *Answer) Import(ctx context.Context, categoryID int64, texts []string) ([]answer.Answer, error) {
	if categoryID <= 0 {
		return nil, fmt.Errorf("%w: category_id is required", domain.ErrValidation)
	}
	answers := make([]answer.Answer, 0, len(texts))
	for _, t := range texts {
		a := answer.NewAnswer(categoryID, t)
		if a.IsBlank() {
			continue
		}
		answers = append(answers, a)
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: no non-blank answers", domain.ErrValidation)
	}

	saved, err := s.store.SaveAll(ctx, answers)
	if err != nil {
		return nil, err
	}
	s.logger.Info("answers imported",
		slog.Int64("category_id", categoryID),
		slog.Int("count", len(saved)),
		slog.Int("dropped", len(texts)-len(saved)),
	)
	return saved, nil
}

// List returns the category's answers, oldest first.
func (s *Answer) List(ctx context.Context, categoryID int64, limit, offset int) ([]answer.Answer, error) {
	options := []repository.Option{repository.WithCategoryID(categoryID), repository.WithOrderAsc("id")}
	if limit > 0 {
		options = append(options, repository.WithPagination(limit, offset)...)
	}
	return s.store.Find(ctx, options...)
}

// Count returns how many answers the category has.
func (s *Answer) Count(ctx context.Context, categoryID int64) (int64, error) {
	return s.store.Count(ctx, repository.WithCategoryID(categoryID))
}

// Uncategorized returns the category's answers without an assignment.
func (s *Answer) Uncategorized(ctx context.Context, categoryID int64) ([]answer.Answer, error) {
	return s.store.FindUncategorized(ctx, categoryID)
}
