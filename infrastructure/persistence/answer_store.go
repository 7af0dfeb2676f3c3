package persistence

import (
	"context"
	"fmt"

	"github.com/helixml/codeframe/domain/answer"
	"github.com/helixml/codeframe/internal/database"
)

// insertBatchSize bounds rows per INSERT to stay under SQLite's variable limit.
const insertBatchSize = 200

// AnswerStore implements answer.Store using GORM.
type AnswerStore struct {
	database.Repository[answer.Answer, AnswerModel]
}

// NewAnswerStore creates a new AnswerStore.
func NewAnswerStore(db database.Database) AnswerStore {
	return AnswerStore{
		Repository: database.NewRepository[answer.Answer, AnswerModel](db, AnswerMapper{}, "answer"),
	}
}

// FindUncategorized returns the category's answers that have no assignment record.
func (s AnswerStore) FindUncategorized(ctx context.Context, categoryID int64) ([]answer.Answer, error) {
	var models []AnswerModel
	err := s.DB(ctx).
		Where("category_id = ?", categoryID).
		Where("NOT EXISTS (SELECT 1 FROM assignments WHERE assignments.answer_id = answers.id)").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("find uncategorized answers: %w", err)
	}

	answers := make([]answer.Answer, len(models))
	for i, m := range models {
		answers[i] = s.Mapper().ToDomain(m)
	}
	return answers, nil
}

// SaveAll inserts new answers and returns them with their IDs.
func (s AnswerStore) SaveAll(ctx context.Context, answers []answer.Answer) ([]answer.Answer, error) {
	if len(answers) == 0 {
		return nil, nil
	}
	models := make([]AnswerModel, len(answers))
	for i, a := range answers {
		models[i] = s.Mapper().ToModel(a)
	}
	if err := s.DB(ctx).CreateInBatches(&models, insertBatchSize).Error; err != nil {
		return nil, fmt.Errorf("save answers: %w", err)
	}

	saved := make([]answer.Answer, len(models))
	for i, m := range models {
		saved[i] = s.Mapper().ToDomain(m)
	}
	return saved, nil
}
