package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/answer"
	"github.com/helixml/codeframe/domain/cluster"
	"github.com/helixml/codeframe/domain/generation"
	"github.com/helixml/codeframe/domain/hierarchy"
	"github.com/helixml/codeframe/domain/job"
	"github.com/helixml/codeframe/domain/repository"
)

// Orchestrator defaults.
const (
	DefaultMinAnswers     = 5
	DefaultTargetLanguage = "en"
	SystemActor           = "system"
)

// StartRequest asks for a new generation.
type StartRequest struct {
	CategoryID int64
	// AnswerIDs restricts the run; nil means every uncategorized answer.
	AnswerIDs      []int64
	Config         cluster.Config
	TargetLanguage string
	Actor          string
}

// Status is a generation with the aggregate state of its jobs.
type Status struct {
	Generation generation.Generation
	Jobs       job.Counts
}

// Generation is the orchestrator: it owns the generation state machine and
// drives the embedding and clustering stages before handing labeling to the
// queue. Status polls finalize a generation once its label jobs are done.
type Generation struct {
	generations generation.Store
	answers     answer.Store
	hierarchy   hierarchy.Store
	embedding   *Embedding
	clustering  *Clustering
	queue       *Queue
	minAnswers  int
	maxExamples int
	now         func() time.Time
	logger      *slog.Logger
}

// NewGeneration creates the orchestrator.
func NewGeneration(
	generations generation.Store,
	answers answer.Store,
	hierarchyStore hierarchy.Store,
	embeddingStage *Embedding,
	clusteringStage *Clustering,
	queue *Queue,
	logger *slog.Logger,
) *Generation {
	return &Generation{
		generations: generations,
		answers:     answers,
		hierarchy:   hierarchyStore,
		embedding:   embeddingStage,
		clustering:  clusteringStage,
		queue:       queue,
		minAnswers:  DefaultMinAnswers,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// WithMinAnswers sets the fewest answers a generation may run on.
func (s *Generation) WithMinAnswers(n int) *Generation {
	if n > 0 {
		s.minAnswers = n
	}
	return s
}

// WithMaxExamples sets the representatives per cluster used when a request
// leaves max_examples unset.
func (s *Generation) WithMaxExamples(n int) *Generation {
	if n > 0 {
		s.maxExamples = n
	}
	return s
}

// Start creates a generation and runs it up to the labeling stage. It
// returns once the label jobs are enqueued. A request rejected before the
// generation exists returns a zero Generation; a failure afterwards returns
// the failed generation alongside the error.
func (s *Generation) Start(ctx context.Context, req StartRequest) (generation.Generation, error) {
	if req.CategoryID <= 0 {
		return generation.Generation{}, fmt.Errorf("%w: category_id is required", domain.ErrValidation)
	}
	cfg := req.Config
	if cfg.MaxExamples == 0 && s.maxExamples > 0 {
		cfg.MaxExamples = s.maxExamples
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return generation.Generation{}, err
	}
	if req.AnswerIDs != nil && len(req.AnswerIDs) == 0 {
		return generation.Generation{}, fmt.Errorf("%w: answer_ids must not be empty when given", domain.ErrValidation)
	}
	language := strings.TrimSpace(req.TargetLanguage)
	if language == "" {
		language = DefaultTargetLanguage
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = SystemActor
	}

	g, err := s.generations.Create(ctx, generation.NewGeneration(req.CategoryID, req.AnswerIDs, cfg, language, actor))
	if err != nil {
		return generation.Generation{}, err
	}

	log := s.logger.With(
		slog.Int64("generation_id", g.ID()),
		slog.Int64("category_id", g.CategoryID()),
	)
	log.Info("generation started", slog.String("actor", actor))

	g, err = s.run(ctx, g, log)
	if err != nil {
		return s.fail(ctx, g, err, log), err
	}
	return g, nil
}

func (s *Generation) run(ctx context.Context, g generation.Generation, log *slog.Logger) (generation.Generation, error) {
	g, err := s.advance(ctx, g, generation.StatusEmbedding)
	if err != nil {
		return g, err
	}

	answers, err := s.loadAnswers(ctx, g)
	if err != nil {
		return g, err
	}

	start := time.Now()
	vectors, stats, err := s.embedding.EmbedAnswers(ctx, answers)
	if err != nil {
		return g, fmt.Errorf("embed answers: %w", err)
	}
	log.Info("embedding stage finished",
		slog.Int("answers", len(answers)),
		slog.Int("cached", stats.Cached),
		slog.Int("fresh", stats.Fresh),
		slog.Duration("duration", time.Since(start)),
	)

	if g, err = s.advance(ctx, g, generation.StatusClustering); err != nil {
		return g, err
	}

	points := make([]cluster.Point, len(answers))
	for i, a := range answers {
		points[i] = cluster.Point{AnswerID: a.ID(), Vector: vectors[a.ID()]}
	}
	result, err := s.clustering.Cluster(ctx, points, g.Config())
	if err != nil {
		return g, err
	}

	payloads := labelPayloads(g, result, answers)
	// Jobs go in before the status flips so a status poll never sees
	// labeling without its jobs.
	if _, err := s.queue.Enqueue(ctx, g.ID(), job.PriorityUserInitiated, payloads...); err != nil {
		return g, err
	}

	g, err = s.advance(ctx, g, generation.StatusLabeling, func(next generation.Generation) generation.Generation {
		return next.WithTotalJobs(len(payloads))
	})
	if err != nil {
		return g, err
	}
	log.Info("label jobs enqueued", slog.Int("jobs", len(payloads)), slog.Int("noise", len(result.Noise)))
	return g, nil
}

// loadAnswers returns the non-blank answers in scope, ordered by id.
func (s *Generation) loadAnswers(ctx context.Context, g generation.Generation) ([]answer.Answer, error) {
	var answers []answer.Answer
	var err error
	if ids := g.RequestedAnswerIDs(); ids != nil {
		answers, err = s.answers.Find(ctx, answer.WithIDs(ids), repository.WithOrderAsc("id"))
		if err != nil {
			return nil, fmt.Errorf("load answers: %w", err)
		}
		if err := checkScope(answers, ids, g.CategoryID()); err != nil {
			return nil, err
		}
	} else {
		answers, err = s.answers.FindUncategorized(ctx, g.CategoryID())
		if err != nil {
			return nil, fmt.Errorf("load uncategorized answers: %w", err)
		}
	}

	usable := answers[:0:0]
	for _, a := range answers {
		if !a.IsBlank() {
			usable = append(usable, a)
		}
	}
	if len(usable) < s.minAnswers {
		return nil, fmt.Errorf("%w: %d usable answers, at least %d required", domain.ErrValidation, len(usable), s.minAnswers)
	}
	return usable, nil
}

func checkScope(answers []answer.Answer, ids []int64, categoryID int64) error {
	found := make(map[int64]bool, len(answers))
	for _, a := range answers {
		if a.CategoryID() != categoryID {
			return fmt.Errorf("%w: answer %d belongs to category %d", domain.ErrValidation, a.ID(), a.CategoryID())
		}
		found[a.ID()] = true
	}
	for _, id := range ids {
		if !found[id] {
			return fmt.Errorf("%w: answer %d not found", domain.ErrValidation, id)
		}
	}
	return nil
}

// labelPayloads builds one job per top-level cluster, carrying the
// representative texts of the cluster and its sub-clusters.
func labelPayloads(g generation.Generation, result cluster.Result, answers []answer.Answer) []job.Payload {
	texts := make(map[int64]string, len(answers))
	for _, a := range answers {
		texts[a.ID()] = a.Text()
	}
	examples := func(c cluster.Cluster) []string {
		ids := c.RepresentativeIDs()
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, texts[id])
		}
		return out
	}

	top := result.TopLevel()
	payloads := make([]job.Payload, 0, len(top))
	for _, c := range top {
		p := job.LabelClusterPayload{
			GenerationID:   g.ID(),
			ClusterID:      c.ID(),
			Size:           c.Size(),
			Examples:       examples(c),
			TargetLanguage: g.TargetLanguage(),
		}
		for _, child := range result.Children(c.ID()) {
			p.Children = append(p.Children, job.SubCluster{ClusterID: child.ID(), Examples: examples(child)})
		}
		payloads = append(payloads, p)
	}
	return payloads
}

// Status returns the generation and its job counts. A labeling generation
// whose jobs have all finished is finalized here.
func (s *Generation) Status(ctx context.Context, id int64) (Status, error) {
	g, err := s.generations.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}
	counts, err := s.queue.Counts(ctx, id)
	if err != nil {
		return Status{}, err
	}

	if g.Status() == generation.StatusLabeling && counts.Pending() == 0 {
		g, err = s.finalize(ctx, g, counts)
		if err != nil {
			return Status{}, err
		}
	}
	return Status{Generation: g, Jobs: counts}, nil
}

func (s *Generation) finalize(ctx context.Context, g generation.Generation, counts job.Counts) (generation.Generation, error) {
	succeeded := int(counts.Completed)
	failed := g.TotalJobs() - succeeded
	if failed < 0 {
		failed = 0
	}

	next := generation.StatusCompleted
	detail := ""
	switch {
	case failed > 0 && succeeded > 0:
		next = generation.StatusPartiallyCompleted
		detail = fmt.Sprintf("%d of %d label jobs failed", failed, g.TotalJobs())
	case failed > 0:
		next = generation.StatusFailed
		detail = fmt.Sprintf("all %d label jobs failed", failed)
	}

	roots, total, err := s.hierarchy.Count(ctx, g.ID())
	if err != nil {
		return g, err
	}

	finalized, err := s.advance(ctx, g, next, func(n generation.Generation) generation.Generation {
		return n.WithCounts(int(roots), int(total)).WithErrorDetail(detail)
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		// A concurrent poll or a cancel won the race; report what it wrote.
		return finalized, nil
	}
	if err != nil {
		return g, err
	}

	s.logger.Info("generation finalized",
		slog.Int64("generation_id", g.ID()),
		slog.String("status", string(next)),
		slog.Int("n_themes", int(roots)),
		slog.Int("n_codes", int(total)),
		slog.Int64("jobs_failed", counts.Failed),
	)
	return finalized, nil
}

// Cancel stops a non-terminal generation. Jobs already running finish;
// queued ones are skipped by their handlers.
func (s *Generation) Cancel(ctx context.Context, id int64, actor string) (generation.Generation, error) {
	g, err := s.generations.Get(ctx, id)
	if err != nil {
		return generation.Generation{}, err
	}
	if strings.TrimSpace(actor) == "" {
		actor = SystemActor
	}
	g, err = s.advance(ctx, g, generation.StatusCancelled, func(n generation.Generation) generation.Generation {
		return n.WithErrorDetail("cancelled by " + actor)
	})
	if err != nil {
		return g, err
	}
	s.logger.Info("generation cancelled", slog.Int64("generation_id", id), slog.String("actor", actor))
	return g, nil
}

// RecoverStale settles pre-labeling generations that have not moved for
// olderThan, which happens when the process running Start dies. A
// clustering generation whose label jobs were already enqueued moves on to
// labeling so the queue finishes it; any other one fails. It returns how
// many generations it settled.
func (s *Generation) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	candidates, err := s.generations.Find(ctx,
		generation.WithStatusIn(generation.StatusPending, generation.StatusEmbedding, generation.StatusClustering),
		repository.WithOrderAsc("id"),
	)
	if err != nil {
		return 0, fmt.Errorf("find stale generations: %w", err)
	}

	cutoff := s.now().Add(-olderThan)
	settled := 0
	for _, g := range candidates {
		if !g.UpdatedAt().Before(cutoff) {
			continue
		}
		counts, err := s.queue.Counts(ctx, g.ID())
		if err != nil {
			return settled, err
		}

		var next generation.Generation
		if g.Status() == generation.StatusClustering && counts.Total() > 0 {
			next, err = s.advance(ctx, g, generation.StatusLabeling, func(n generation.Generation) generation.Generation {
				return n.WithTotalJobs(int(counts.Total()))
			})
		} else {
			detail := fmt.Sprintf("abandoned in %s: no progress since %s", g.Status(), g.UpdatedAt().Format(time.RFC3339))
			next, err = s.advance(ctx, g, generation.StatusFailed, func(n generation.Generation) generation.Generation {
				return n.WithErrorDetail(detail)
			})
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return settled, err
		}

		s.logger.Warn("recovered stale generation",
			slog.Int64("generation_id", g.ID()),
			slog.String("from", string(g.Status())),
			slog.String("to", string(next.Status())),
			slog.Int64("jobs", counts.Total()),
		)
		settled++
	}
	return settled, nil
}

// Get returns a generation without touching its status.
func (s *Generation) Get(ctx context.Context, id int64) (generation.Generation, error) {
	return s.generations.Get(ctx, id)
}

// List returns the category's generations, newest first.
func (s *Generation) List(ctx context.Context, categoryID int64) ([]generation.Generation, error) {
	return s.generations.Find(ctx,
		repository.WithCategoryID(categoryID),
		repository.WithOrderDesc("id"),
	)
}

func (s *Generation) advance(
	ctx context.Context,
	g generation.Generation,
	next generation.Status,
	mutate ...func(generation.Generation) generation.Generation,
) (generation.Generation, error) {
	from := g.Status()
	moved, err := g.Transition(next, s.now())
	if err != nil {
		return g, err
	}
	for _, m := range mutate {
		moved = m(moved)
	}
	return s.generations.Transition(ctx, from, moved)
}

// fail records err on the generation. A generation that another actor
// already moved to a terminal state, such as a cancel, is left alone.
func (s *Generation) fail(ctx context.Context, g generation.Generation, cause error, log *slog.Logger) generation.Generation {
	ctx = context.WithoutCancel(ctx)
	if g.Status().IsTerminal() {
		log.Info("generation stopped", slog.String("status", string(g.Status())), slog.String("reason", cause.Error()))
		return g
	}

	failed, err := s.advance(ctx, g, generation.StatusFailed, func(n generation.Generation) generation.Generation {
		return n.WithErrorDetail(cause.Error())
	})
	if err != nil {
		log.Error("failed to record generation failure",
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		if failed.ID() != 0 {
			return failed
		}
		return g
	}
	log.Error("generation failed", slog.String("error", cause.Error()))
	return failed
}
