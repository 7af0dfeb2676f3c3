package persistence

import (
	"context"
	"fmt"

	"github.com/helixml/codeframe/domain/assignment"
	"github.com/helixml/codeframe/domain/repository"
	"github.com/helixml/codeframe/internal/database"
	"gorm.io/gorm/clause"
)

// AssignmentStore implements assignment.Store using GORM.
type AssignmentStore struct {
	database.Repository[assignment.Record, AssignmentModel]
}

// NewAssignmentStore creates a new AssignmentStore.
func NewAssignmentStore(db database.Database) AssignmentStore {
	return AssignmentStore{
		Repository: database.NewRepository[assignment.Record, AssignmentModel](db, AssignmentMapper{}, "assignment"),
	}
}

// Upsert writes records keyed by answer; a later write replaces the earlier one.
func (s AssignmentStore) Upsert(ctx context.Context, records []assignment.Record) error {
	if len(records) == 0 {
		return nil
	}
	byAnswer := make(map[int64]int, len(records))
	models := make([]AssignmentModel, 0, len(records))
	for _, r := range records {
		if i, ok := byAnswer[r.AnswerID()]; ok {
			models[i] = s.Mapper().ToModel(r)
			continue
		}
		byAnswer[r.AnswerID()] = len(models)
		models = append(models, s.Mapper().ToModel(r))
	}

	err := s.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "answer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"generation_id", "hierarchy_node_id", "confidence", "created_at"}),
	}).CreateInBatches(&models, insertBatchSize).Error
	if err != nil {
		return fmt.Errorf("upsert assignments: %w", err)
	}
	return nil
}

// DeleteForAnswers removes the generation's records for the given answers.
func (s AssignmentStore) DeleteForAnswers(ctx context.Context, generationID int64, answerIDs []int64) error {
	if len(answerIDs) == 0 {
		return nil
	}
	for start := 0; start < len(answerIDs); start += lookupBatchSize {
		end := min(start+lookupBatchSize, len(answerIDs))
		err := s.DeleteBy(ctx,
			repository.WithGenerationID(generationID),
			repository.WithConditionIn("answer_id", answerIDs[start:end]),
		)
		if err != nil {
			return err
		}
	}
	return nil
}
