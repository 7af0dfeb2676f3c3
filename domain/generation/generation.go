// Package generation models one run of the codeframe pipeline for a category.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/cluster"
	"github.com/helixml/codeframe/domain/repository"
)

// Generation is one pipeline run.
type Generation struct {
	id                 int64
	categoryID         int64
	status             Status
	requestedAnswerIDs []int64
	config             cluster.Config
	targetLanguage     string
	createdBy          string
	errorDetail        string
	nThemes            int
	nCodes             int
	totalJobs          int
	createdAt          time.Time
	updatedAt          time.Time
	completedAt        *time.Time
}

// NewGeneration creates a pending generation. A nil answerIDs means every
// uncategorized answer of the category.
func NewGeneration(categoryID int64, answerIDs []int64, cfg cluster.Config, targetLanguage, createdBy string) Generation {
	return Generation{
		categoryID:         categoryID,
		status:             StatusPending,
		requestedAnswerIDs: copyIDs(answerIDs),
		config:             cfg,
		targetLanguage:     targetLanguage,
		createdBy:          createdBy,
	}
}

// Reconstruct rebuilds a Generation from storage.
func Reconstruct(
	id, categoryID int64,
	status Status,
	requestedAnswerIDs []int64,
	cfg cluster.Config,
	targetLanguage, createdBy, errorDetail string,
	nThemes, nCodes, totalJobs int,
	createdAt, updatedAt time.Time,
	completedAt *time.Time,
) Generation {
	return Generation{
		id:                 id,
		categoryID:         categoryID,
		status:             status,
		requestedAnswerIDs: copyIDs(requestedAnswerIDs),
		config:             cfg,
		targetLanguage:     targetLanguage,
		createdBy:          createdBy,
		errorDetail:        errorDetail,
		nThemes:            nThemes,
		nCodes:             nCodes,
		totalJobs:          totalJobs,
		createdAt:          createdAt,
		updatedAt:          updatedAt,
		completedAt:        completedAt,
	}
}

// ID returns the generation ID.
func (g Generation) ID() int64 { return g.id }

// CategoryID returns the category being coded.
func (g Generation) CategoryID() int64 { return g.categoryID }

// Status returns the lifecycle state.
func (g Generation) Status() Status { return g.status }

// RequestedAnswerIDs returns the explicit answer selection, nil for all.
func (g Generation) RequestedAnswerIDs() []int64 { return copyIDs(g.requestedAnswerIDs) }

// Config returns the clustering configuration.
func (g Generation) Config() cluster.Config { return g.config }

// TargetLanguage returns the language labels are written in.
func (g Generation) TargetLanguage() string { return g.targetLanguage }

// CreatedBy returns the actor who started the generation.
func (g Generation) CreatedBy() string { return g.createdBy }

// ErrorDetail returns a human-readable failure description.
func (g Generation) ErrorDetail() string { return g.errorDetail }

// NThemes returns the number of root codes, set at finalization.
func (g Generation) NThemes() int { return g.nThemes }

// NCodes returns the number of codes, set at finalization.
func (g Generation) NCodes() int { return g.nCodes }

// TotalJobs returns the number of label jobs enqueued.
func (g Generation) TotalJobs() int { return g.totalJobs }

// CreatedAt returns when the generation was started.
func (g Generation) CreatedAt() time.Time { return g.createdAt }

// UpdatedAt returns when the generation last changed.
func (g Generation) UpdatedAt() time.Time { return g.updatedAt }

// CompletedAt returns when a terminal state was reached.
func (g Generation) CompletedAt() *time.Time { return g.completedAt }

// Transition returns a copy in the next status, or ErrInvalidTransition.
func (g Generation) Transition(next Status, now time.Time) (Generation, error) {
	if !g.status.CanTransition(next) {
		return g, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, g.status, next)
	}
	g.status = next
	g.updatedAt = now
	if next.IsTerminal() {
		t := now
		g.completedAt = &t
	}
	return g, nil
}

// WithErrorDetail returns a copy carrying an error description.
func (g Generation) WithErrorDetail(detail string) Generation {
	g.errorDetail = strings.TrimSpace(detail)
	return g
}

// WithTotalJobs returns a copy with the enqueued job count.
func (g Generation) WithTotalJobs(n int) Generation {
	g.totalJobs = n
	return g
}

// WithCounts returns a copy with derived hierarchy counts.
func (g Generation) WithCounts(themes, codes int) Generation {
	g.nThemes = themes
	g.nCodes = codes
	return g
}

// Store persists generations.
type Store interface {
	// Create inserts a pending generation. It fails with
	// domain.ErrGenerationInProgress when the category already has an
	// active one.
	Create(ctx context.Context, g Generation) (Generation, error)
	Get(ctx context.Context, id int64) (Generation, error)
	Find(ctx context.Context, options ...repository.Option) ([]Generation, error)

	// Transition writes g only if the stored status still equals from.
	// A lost race yields domain.ErrInvalidTransition.
	Transition(ctx context.Context, from Status, g Generation) (Generation, error)
}

// WithStatusIn filters generations by status.
func WithStatusIn(statuses ...Status) repository.Option {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return repository.WithConditionIn("status", values)
}

func copyIDs(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	return append([]int64{}, ids...)
}
