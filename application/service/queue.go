package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/job"
	"github.com/helixml/codeframe/domain/repository"
)

// DefaultMaxAttempts is the attempt budget for jobs when none is configured.
const DefaultMaxAttempts = 5

// JobListParams configures job listing.
type JobListParams struct {
	State  *job.State
	Kind   *job.Kind
	Limit  int
	Offset int
}

// Queue provides the main interface for enqueuing and inspecting jobs.
type Queue struct {
	store       job.Store
	maxAttempts int
	logger      *slog.Logger
}

// NewQueue creates a new queue service.
func NewQueue(store job.Store, logger *slog.Logger) *Queue {
	return &Queue{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger,
	}
}

// WithMaxAttempts sets the attempt budget of newly enqueued jobs.
func (q *Queue) WithMaxAttempts(n int) *Queue {
	if n > 0 {
		q.maxAttempts = n
	}
	return q
}

// Enqueue adds one job per payload for the generation. Payloads whose dedup
// key is already queued are skipped; the number actually inserted is returned.
func (q *Queue) Enqueue(ctx context.Context, generationID int64, priority int, payloads ...job.Payload) (int, error) {
	if len(payloads) == 0 {
		return 0, nil
	}
	jobs := make([]job.Job, 0, len(payloads))
	for _, p := range payloads {
		j, err := job.NewJob(generationID, p, priority, q.maxAttempts)
		if err != nil {
			return 0, err
		}
		jobs = append(jobs, j)
	}

	inserted, err := q.store.Enqueue(ctx, jobs)
	if err != nil {
		return 0, fmt.Errorf("enqueue jobs: %w", err)
	}

	q.logger.Debug("jobs enqueued",
		slog.Int64("generation_id", generationID),
		slog.String("kind", string(payloads[0].Kind())),
		slog.Int("requested", len(payloads)),
		slog.Int("inserted", inserted),
	)
	return inserted, nil
}

// Counts returns the generation's jobs aggregated by state.
func (q *Queue) Counts(ctx context.Context, generationID int64) (job.Counts, error) {
	return q.store.Counts(ctx, generationID)
}

// List returns the generation's jobs, oldest first.
func (q *Queue) List(ctx context.Context, generationID int64, params *JobListParams) ([]job.Job, error) {
	options := []repository.Option{
		repository.WithGenerationID(generationID),
		repository.WithOrderAsc("id"),
	}
	if params != nil {
		if params.State != nil {
			options = append(options, job.WithState(*params.State))
		}
		if params.Kind != nil {
			options = append(options, job.WithKind(*params.Kind))
		}
		if params.Limit > 0 {
			options = append(options, repository.WithPagination(params.Limit, params.Offset)...)
		}
	}
	return q.store.Find(ctx, options...)
}

// Get retrieves a job by ID.
func (q *Queue) Get(ctx context.Context, id int64) (job.Job, error) {
	return q.store.Get(ctx, id)
}

// ByDedupKey returns the job enqueued under key.
func (q *Queue) ByDedupKey(ctx context.Context, key string) (job.Job, error) {
	jobs, err := q.store.Find(ctx, repository.WithCondition("dedup_key", key), repository.WithLimit(1))
	if err != nil {
		return job.Job{}, err
	}
	if len(jobs) == 0 {
		return job.Job{}, fmt.Errorf("job %q: %w", key, domain.ErrNotFound)
	}
	return jobs[0], nil
}
