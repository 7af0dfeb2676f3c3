// Package assignment links answers to codes of a finalized codeframe.
package assignment

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/repository"
)

// Record is the committed assignment of one answer to one code.
type Record struct {
	id           int64
	generationID int64
	answerID     int64
	nodeID       int64
	confidence   float64
	createdAt    time.Time
}

// NewRecord creates an assignment that has not been persisted yet.
func NewRecord(generationID, answerID, nodeID int64, confidence float64) Record {
	return Record{
		generationID: generationID,
		answerID:     answerID,
		nodeID:       nodeID,
		confidence:   confidence,
	}
}

// ReconstructRecord rebuilds a Record from storage.
func ReconstructRecord(id, generationID, answerID, nodeID int64, confidence float64, createdAt time.Time) Record {
	return Record{
		id:           id,
		generationID: generationID,
		answerID:     answerID,
		nodeID:       nodeID,
		confidence:   confidence,
		createdAt:    createdAt,
	}
}

// ID returns the record ID.
func (r Record) ID() int64 { return r.id }

// GenerationID returns the generation whose codeframe was used.
func (r Record) GenerationID() int64 { return r.generationID }

// AnswerID returns the assigned answer.
func (r Record) AnswerID() int64 { return r.answerID }

// NodeID returns the hierarchy node the answer was assigned to.
func (r Record) NodeID() int64 { return r.nodeID }

// Confidence returns the classifier confidence in [0,1].
func (r Record) Confidence() float64 { return r.confidence }

// CreatedAt returns when the record was written.
func (r Record) CreatedAt() time.Time { return r.createdAt }

// Candidate is a code offered to the classifier.
type Candidate struct {
	ID          int64
	Name        string
	Description string
}

// Score is the classifier's confidence that an answer belongs to a code.
type Score struct {
	CodeID     int64   `json:"code_id"`
	Confidence float64 `json:"confidence"`
}

// Classifier scores an answer against candidate codes.
type Classifier interface {
	Classify(ctx context.Context, answerText string, candidates []Candidate) ([]Score, error)
}

// Best returns the highest-confidence valid score. Scores for unknown codes
// or with confidence outside [0,1] are ignored; ties go to the lower code id.
func Best(scores []Score, candidates []Candidate) (Score, bool) {
	valid := make(map[int64]bool, len(candidates))
	for _, c := range candidates {
		valid[c.ID] = true
	}

	var best Score
	found := false
	for _, s := range scores {
		if !valid[s.CodeID] || math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1 {
			continue
		}
		if !found || s.Confidence > best.Confidence ||
			(s.Confidence == best.Confidence && s.CodeID < best.CodeID) {
			best = s
			found = true
		}
	}
	return best, found
}

// ValidateThreshold checks a confidence threshold.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: threshold %v outside [0,1]", domain.ErrValidation, threshold)
	}
	return nil
}

// Summary reports the outcome of an assignment run.
type Summary struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Store persists assignment records.
type Store interface {
	// Upsert writes records, replacing any existing record for the same answer.
	Upsert(ctx context.Context, records []Record) error
	// DeleteForAnswers removes the generation's records for the given answers.
	DeleteForAnswers(ctx context.Context, generationID int64, answerIDs []int64) error
	Find(ctx context.Context, options ...repository.Option) ([]Record, error)
	Count(ctx context.Context, options ...repository.Option) (int64, error)
}

// WithAnswerIDs filters records by answer.
func WithAnswerIDs(ids []int64) repository.Option {
	return repository.WithConditionIn("answer_id", ids)
}

// WithNodeID filters records by hierarchy node.
func WithNodeID(id int64) repository.Option {
	return repository.WithCondition("hierarchy_node_id", id)
}
