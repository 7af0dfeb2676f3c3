// Package job provides the durable job queue domain types.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/repository"
)

// ErrLeaseLost is returned when a worker acks a job it no longer owns,
// typically because the lease expired and the reaper requeued it.
var ErrLeaseLost = errors.New("job lease lost")

// Kind tags a job with the payload type it carries.
type Kind string

// Kind values.
const (
	KindLabelCluster     Kind = "label_cluster"
	KindApplyAssignments Kind = "apply_assignments"
)

// State is a job's position in its lifecycle.
type State string

// State values.
const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// IsTerminal reports whether the job will not run again.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Priority values. Higher runs first.
const (
	PriorityNormal        = 2000
	PriorityUserInitiated = 5000
)

// Payload is the strongly typed body of a job.
type Payload interface {
	Kind() Kind
	// DedupKey identifies the unit of work; enqueueing a second job with
	// the same key is a no-op.
	DedupKey() string
}

// Job is one row of the durable queue.
type Job struct {
	id             int64
	generationID   int64
	kind           Kind
	payload        []byte
	dedupKey       string
	state          State
	priority       int
	attempts       int
	maxAttempts    int
	runAfter       time.Time
	leaseOwner     string
	leaseExpiresAt *time.Time
	version        int64
	lastError      string
	finishedAt     *time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

// NewJob creates a waiting job for the payload.
func NewJob(generationID int64, payload Payload, priority, maxAttempts int) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal %s payload: %w", payload.Kind(), err)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Job{
		generationID: generationID,
		kind:         payload.Kind(),
		payload:      raw,
		dedupKey:     payload.DedupKey(),
		state:        StateWaiting,
		priority:     priority,
		maxAttempts:  maxAttempts,
		version:      1,
	}, nil
}

// Reconstruct rebuilds a Job from storage.
func Reconstruct(
	id, generationID int64,
	kind Kind,
	payload []byte,
	dedupKey string,
	state State,
	priority, attempts, maxAttempts int,
	runAfter time.Time,
	leaseOwner string,
	leaseExpiresAt *time.Time,
	version int64,
	lastError string,
	finishedAt *time.Time,
	createdAt, updatedAt time.Time,
) Job {
	return Job{
		id:             id,
		generationID:   generationID,
		kind:           kind,
		payload:        append([]byte(nil), payload...),
		dedupKey:       dedupKey,
		state:          state,
		priority:       priority,
		attempts:       attempts,
		maxAttempts:    maxAttempts,
		runAfter:       runAfter,
		leaseOwner:     leaseOwner,
		leaseExpiresAt: leaseExpiresAt,
		version:        version,
		lastError:      lastError,
		finishedAt:     finishedAt,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// ID returns the job ID.
func (j Job) ID() int64 { return j.id }

// GenerationID returns the generation the job belongs to.
func (j Job) GenerationID() int64 { return j.generationID }

// Kind returns the job kind.
func (j Job) Kind() Kind { return j.kind }

// Payload returns the raw JSON payload.
func (j Job) Payload() []byte { return append([]byte(nil), j.payload...) }

// DedupKey returns the deduplication key.
func (j Job) DedupKey() string { return j.dedupKey }

// State returns the job state.
func (j Job) State() State { return j.state }

// Priority returns the job priority.
func (j Job) Priority() int { return j.priority }

// Attempts returns how many times the job has been claimed.
func (j Job) Attempts() int { return j.attempts }

// MaxAttempts returns the attempt budget.
func (j Job) MaxAttempts() int { return j.maxAttempts }

// RunAfter returns the earliest time the job may be claimed.
func (j Job) RunAfter() time.Time { return j.runAfter }

// LeaseOwner returns the worker holding the job, empty when not active.
func (j Job) LeaseOwner() string { return j.leaseOwner }

// LeaseExpiresAt returns when the current lease lapses.
func (j Job) LeaseExpiresAt() *time.Time { return j.leaseExpiresAt }

// Version returns the row version used for compare-and-swap updates.
func (j Job) Version() int64 { return j.version }

// LastError returns the error message of the latest failed attempt.
func (j Job) LastError() string { return j.lastError }

// FinishedAt returns when the job reached a terminal state.
func (j Job) FinishedAt() *time.Time { return j.finishedAt }

// CreatedAt returns when the job was enqueued.
func (j Job) CreatedAt() time.Time { return j.createdAt }

// UpdatedAt returns when the job row last changed.
func (j Job) UpdatedAt() time.Time { return j.updatedAt }

// AttemptsExhausted reports whether another failure is final.
func (j Job) AttemptsExhausted() bool { return j.attempts >= j.maxAttempts }

// Decode unmarshals the job payload into P.
func Decode[P Payload](j Job) (P, error) {
	var p P
	if err := json.Unmarshal(j.payload, &p); err != nil {
		return p, fmt.Errorf("decode %s payload of job %d: %w", j.kind, j.id, err)
	}
	if p.Kind() != j.kind {
		return p, fmt.Errorf("job %d: payload kind %s does not match %s", j.id, p.Kind(), j.kind)
	}
	return p, nil
}

// Counts aggregates jobs by state.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Pending returns jobs that will still run.
func (c Counts) Pending() int64 { return c.Waiting + c.Active }

// Total returns all jobs.
func (c Counts) Total() int64 { return c.Waiting + c.Active + c.Completed + c.Failed }

// Store is the durable queue backend.
type Store interface {
	// Enqueue inserts jobs, skipping any whose dedup key already exists.
	// It returns the number of jobs actually inserted.
	Enqueue(ctx context.Context, jobs []Job) (int, error)

	// Claim leases the next runnable job of one of the given kinds.
	Claim(ctx context.Context, owner string, kinds []Kind, lease time.Duration, now time.Time) (Job, bool, error)

	Heartbeat(ctx context.Context, id int64, owner string, until time.Time) error
	Complete(ctx context.Context, id int64, owner string, now time.Time) error

	// Fail records a failed attempt. A nil retryAt marks the job failed for
	// good; otherwise it waits until retryAt.
	Fail(ctx context.Context, id int64, owner, message string, retryAt *time.Time, now time.Time) error

	// ReapExpired returns active jobs with lapsed leases to waiting, or to
	// failed when their attempts are exhausted.
	ReapExpired(ctx context.Context, now time.Time) (int, error)

	Counts(ctx context.Context, generationID int64) (Counts, error)
	Get(ctx context.Context, id int64) (Job, error)
	Find(ctx context.Context, options ...repository.Option) ([]Job, error)
}

// WithState filters jobs by state.
func WithState(s State) repository.Option {
	return repository.WithCondition("state", string(s))
}

// WithKind filters jobs by kind.
func WithKind(k Kind) repository.Option {
	return repository.WithCondition("kind", string(k))
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func (e *permanentError) Is(target error) bool { return target == domain.ErrJobPermanentFailure }

// Permanent marks a handler error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
