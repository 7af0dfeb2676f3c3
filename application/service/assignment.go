package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/answer"
	"github.com/helixml/codeframe/domain/assignment"
	"github.com/helixml/codeframe/domain/generation"
	"github.com/helixml/codeframe/domain/hierarchy"
	"github.com/helixml/codeframe/domain/job"
	"github.com/helixml/codeframe/domain/repository"
)

// DefaultAssignmentParallelism bounds concurrent classifier calls.
const DefaultAssignmentParallelism = 4

// AssignRequest asks for answers to be assigned to a generation's codes.
type AssignRequest struct {
	GenerationID int64
	Threshold    float64
	// AnswerIDs restricts the run; nil falls back to the generation's
	// requested answers, then to the whole category.
	AnswerIDs []int64
	Actor     string
}

// Assignment is the assignment stage.
type Assignment struct {
	generations generation.Store
	answers     answer.Store
	hierarchy   hierarchy.Store
	assignments assignment.Store
	classifier  assignment.Classifier
	queue       *Queue
	parallelism int
	logger      *slog.Logger
}

// NewAssignment creates the assignment stage.
func NewAssignment(
	generations generation.Store,
	answers answer.Store,
	hierarchyStore hierarchy.Store,
	assignments assignment.Store,
	classifier assignment.Classifier,
	queue *Queue,
	logger *slog.Logger,
) *Assignment {
	return &Assignment{
		generations: generations,
		answers:     answers,
		hierarchy:   hierarchyStore,
		assignments: assignments,
		classifier:  classifier,
		queue:       queue,
		parallelism: DefaultAssignmentParallelism,
		logger:      logger,
	}
}

// WithParallelism sets how many answers are classified at once.
func (s *Assignment) WithParallelism(n int) *Assignment {
	if n > 0 {
		s.parallelism = n
	}
	return s
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeApplied
	outcomeError
)

// Apply classifies every answer in scope against the leaf codes and keeps
// the best candidate when it reaches the threshold. Re-running replaces an
// answer's previous assignment; answers now below the threshold lose theirs.
func (s *Assignment) Apply(ctx context.Context, req AssignRequest) (assignment.Summary, error) {
	g, answers, candidates, err := s.prepare(ctx, req)
	if err != nil {
		return assignment.Summary{}, err
	}
	log := s.logger.With(slog.Int64("generation_id", g.ID()))
	start := time.Now()

	outcomes := make([]outcome, len(answers))
	best := make([]assignment.Score, len(answers))
	var errMu sync.Mutex
	var firstErr error

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(s.parallelism)
	for i, a := range answers {
		grp.Go(func() error {
			if a.IsBlank() {
				outcomes[i] = outcomeSkipped
				return nil
			}
			scores, err := s.classifier.Classify(gctx, a.Text(), candidates)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				outcomes[i] = outcomeError
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return nil
			}
			top, ok := assignment.Best(scores, candidates)
			if !ok || top.Confidence < req.Threshold {
				outcomes[i] = outcomeSkipped
				return nil
			}
			outcomes[i] = outcomeApplied
			best[i] = top
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return assignment.Summary{}, fmt.Errorf("classify answers: %w", err)
	}

	var summary assignment.Summary
	var records []assignment.Record
	var skipped []int64
	for i, a := range answers {
		switch outcomes[i] {
		case outcomeApplied:
			summary.Applied++
			records = append(records, assignment.NewRecord(g.ID(), a.ID(), best[i].CodeID, best[i].Confidence))
		case outcomeSkipped:
			summary.Skipped++
			skipped = append(skipped, a.ID())
		case outcomeError:
			summary.Errors++
		}
	}

	if err := s.assignments.DeleteForAnswers(ctx, g.ID(), skipped); err != nil {
		return summary, fmt.Errorf("clear skipped assignments: %w", err)
	}
	if err := s.assignments.Upsert(ctx, records); err != nil {
		return summary, fmt.Errorf("save assignments: %w", err)
	}

	attrs := []any{
		slog.Int("applied", summary.Applied),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errors", summary.Errors),
		slog.Float64("threshold", req.Threshold),
		slog.Duration("duration", time.Since(start)),
	}
	if firstErr != nil {
		attrs = append(attrs, slog.String("first_error", firstErr.Error()))
	}
	log.Info("assignments applied", attrs...)
	return summary, nil
}

// ApplyAsync validates the request and queues it as an apply_assignments
// job. It returns the id of the queued job.
func (s *Assignment) ApplyAsync(ctx context.Context, req AssignRequest) (int64, error) {
	if _, _, _, err := s.prepare(ctx, req); err != nil {
		return 0, err
	}
	payload := job.ApplyAssignmentsPayload{
		GenerationID: req.GenerationID,
		Threshold:    req.Threshold,
		AnswerIDs:    req.AnswerIDs,
		Actor:        req.Actor,
		RequestID:    uuid.NewString(),
	}
	if _, err := s.queue.Enqueue(ctx, req.GenerationID, job.PriorityUserInitiated, payload); err != nil {
		return 0, err
	}
	queued, err := s.queue.ByDedupKey(ctx, payload.DedupKey())
	if err != nil {
		return 0, err
	}
	return queued.ID(), nil
}

// List returns the assignment records of a generation.
func (s *Assignment) List(ctx context.Context, generationID int64) ([]assignment.Record, error) {
	return s.assignments.Find(ctx, repository.WithGenerationID(generationID), repository.WithOrderAsc("answer_id"))
}

func (s *Assignment) prepare(ctx context.Context, req AssignRequest) (generation.Generation, []answer.Answer, []assignment.Candidate, error) {
	if err := assignment.ValidateThreshold(req.Threshold); err != nil {
		return generation.Generation{}, nil, nil, err
	}
	g, err := s.generations.Get(ctx, req.GenerationID)
	if err != nil {
		return generation.Generation{}, nil, nil, err
	}
	if !g.Status().IsFinalized() {
		return g, nil, nil, fmt.Errorf("%w: generation %d is %s, assignments need a completed codeframe",
			domain.ErrValidation, g.ID(), g.Status())
	}

	nodes, err := s.hierarchy.Flat(ctx, g.ID())
	if err != nil {
		return g, nil, nil, err
	}
	leaves := hierarchy.Leaves(nodes)
	if len(leaves) == 0 {
		return g, nil, nil, fmt.Errorf("%w: generation %d has no codes", domain.ErrInsufficientData, g.ID())
	}
	candidates := make([]assignment.Candidate, len(leaves))
	for i, n := range leaves {
		candidates[i] = assignment.Candidate{ID: n.ID(), Name: n.Name(), Description: n.Description()}
	}

	answers, err := s.scope(ctx, g, req.AnswerIDs)
	if err != nil {
		return g, nil, nil, err
	}
	return g, answers, candidates, nil
}

func (s *Assignment) scope(ctx context.Context, g generation.Generation, ids []int64) ([]answer.Answer, error) {
	if ids == nil {
		ids = g.RequestedAnswerIDs()
	}
	if ids == nil {
		return s.answers.Find(ctx, repository.WithCategoryID(g.CategoryID()), repository.WithOrderAsc("id"))
	}
	answers, err := s.answers.Find(ctx, answer.WithIDs(ids), repository.WithOrderAsc("id"))
	if err != nil {
		return nil, err
	}
	if err := checkScope(answers, ids, g.CategoryID()); err != nil {
		return nil, err
	}
	return answers, nil
}
