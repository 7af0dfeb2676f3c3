// Package assign provides the handler that runs the assignment stage in the
// background.
package assign

import (
	"context"
	"errors"
	"log/slog"

	"github.com/helixml/codeframe/application/handler"
	"github.com/helixml/codeframe/application/service"
	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/job"
)

// Apply handles apply_assignments jobs.
type Apply struct {
	assignments *service.Assignment
	logger      *slog.Logger
}

// NewApply creates a new Apply handler.
func NewApply(assignments *service.Assignment, logger *slog.Logger) *Apply {
	return &Apply{assignments: assignments, logger: logger}
}

// Register binds the handler to its job kind.
func (h *Apply) Register(r *handler.Registry) {
	handler.Register(r, h.Execute)
}

// Execute runs one assignment request. Requests that can never succeed,
// such as a missing generation or an unfinished codeframe, fail permanently.
func (h *Apply) Execute(ctx context.Context, j job.Job, p job.ApplyAssignmentsPayload) error {
	summary, err := h.assignments.Apply(ctx, service.AssignRequest{
		GenerationID: p.GenerationID,
		Threshold:    p.Threshold,
		AnswerIDs:    p.AnswerIDs,
		Actor:        p.Actor,
	})
	if errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrInsufficientData) {
		return job.Permanent(err)
	}
	if err != nil {
		return err
	}

	h.logger.Info("background assignment finished",
		slog.Int64("job_id", j.ID()),
		slog.Int64("generation_id", p.GenerationID),
		slog.String("actor", p.Actor),
		slog.Int("applied", summary.Applied),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errors", summary.Errors),
	)
	return nil
}
