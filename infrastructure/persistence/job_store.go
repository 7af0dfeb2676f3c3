package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/helixml/codeframe/domain/job"
	"github.com/helixml/codeframe/domain/repository"
	"github.com/helixml/codeframe/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// leaseExpiredMessage is recorded on jobs the reaper takes back.
const leaseExpiredMessage = "lease expired before the job was acknowledged"

// JobStore implements job.Store using GORM. Job rows are never deleted.
type JobStore struct {
	database.Repository[job.Job, JobModel]
}

// NewJobStore creates a new JobStore.
func NewJobStore(db database.Database) JobStore {
	return JobStore{
		Repository: database.NewRepository[job.Job, JobModel](db, JobMapper{}, "job"),
	}
}

// Enqueue inserts jobs, skipping those whose dedup key already exists.
func (s JobStore) Enqueue(ctx context.Context, jobs []job.Job) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	models := make([]JobModel, len(jobs))
	for i, j := range jobs {
		m := s.Mapper().ToModel(j)
		if m.RunAfter.IsZero() {
			m.RunAfter = now
		}
		models[i] = m
	}

	result := s.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoNothing: true,
	}).CreateInBatches(&models, insertBatchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("enqueue jobs: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

type claimed struct {
	job job.Job
	ok  bool
}

// Claim leases the highest-priority runnable job of the given kinds. On
// PostgreSQL competing workers skip rows another claim has locked; the
// version compare-and-swap makes the claim safe on any backend.
func (s JobStore) Claim(ctx context.Context, owner string, kinds []job.Kind, lease time.Duration, now time.Time) (job.Job, bool, error) {
	if len(kinds) == 0 {
		return job.Job{}, false, nil
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	now = now.UTC()

	res, err := database.WithTransactionResult(ctx, s.Database(), func(tx *gorm.DB) (claimed, error) {
		var candidates []JobModel
		err := database.ForUpdateSkipLocked(tx).
			Where("state = ? AND run_after <= ? AND kind IN ?", string(job.StateWaiting), now, names).
			Order("priority DESC, run_after ASC, id ASC").
			Limit(1).
			Find(&candidates).Error
		if err != nil {
			return claimed{}, fmt.Errorf("select runnable job: %w", err)
		}
		if len(candidates) == 0 {
			return claimed{}, nil
		}
		c := candidates[0]

		expires := now.Add(lease)
		update := tx.Model(&JobModel{}).
			Where("id = ? AND version = ? AND state = ?", c.ID, c.Version, string(job.StateWaiting)).
			Updates(map[string]any{
				"state":            string(job.StateActive),
				"attempts":         gorm.Expr("attempts + 1"),
				"lease_owner":      owner,
				"lease_expires_at": expires,
				"version":          gorm.Expr("version + 1"),
				"updated_at":       now,
			})
		if update.Error != nil {
			return claimed{}, fmt.Errorf("claim job %d: %w", c.ID, update.Error)
		}
		if update.RowsAffected == 0 {
			return claimed{}, nil
		}

		var fresh JobModel
		if err := tx.Where("id = ?", c.ID).First(&fresh).Error; err != nil {
			return claimed{}, fmt.Errorf("reload job %d: %w", c.ID, err)
		}
		return claimed{job: s.Mapper().ToDomain(fresh), ok: true}, nil
	})
	if err != nil {
		return job.Job{}, false, err
	}
	return res.job, res.ok, nil
}

// Heartbeat extends the lease of an active job owned by owner.
func (s JobStore) Heartbeat(ctx context.Context, id int64, owner string, until time.Time) error {
	return s.ack(ctx, id, owner, "heartbeat", map[string]any{
		"lease_expires_at": until.UTC(),
		"updated_at":       time.Now().UTC(),
	})
}

// Complete marks an active job completed.
func (s JobStore) Complete(ctx context.Context, id int64, owner string, now time.Time) error {
	now = now.UTC()
	return s.ack(ctx, id, owner, "complete", map[string]any{
		"state":            string(job.StateCompleted),
		"lease_owner":      "",
		"lease_expires_at": nil,
		"finished_at":      now,
		"version":          gorm.Expr("version + 1"),
		"updated_at":       now,
	})
}

// Fail records a failed attempt, either rescheduling the job or failing it for good.
func (s JobStore) Fail(ctx context.Context, id int64, owner, message string, retryAt *time.Time, now time.Time) error {
	now = now.UTC()
	updates := map[string]any{
		"lease_owner":      "",
		"lease_expires_at": nil,
		"last_error":       message,
		"version":          gorm.Expr("version + 1"),
		"updated_at":       now,
	}
	if retryAt == nil {
		updates["state"] = string(job.StateFailed)
		updates["finished_at"] = now
	} else {
		updates["state"] = string(job.StateWaiting)
		updates["run_after"] = retryAt.UTC()
	}
	return s.ack(ctx, id, owner, "fail", updates)
}

func (s JobStore) ack(ctx context.Context, id int64, owner, op string, updates map[string]any) error {
	result := s.DB(ctx).Model(&JobModel{}).
		Where("id = ? AND lease_owner = ? AND state = ?", id, owner, string(job.StateActive)).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("%s job %d: %w", op, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s job %d: %w", op, id, job.ErrLeaseLost)
	}
	return nil
}

// ReapExpired takes back jobs whose worker stopped heartbeating.
func (s JobStore) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	return database.WithTransactionResult(ctx, s.Database(), func(tx *gorm.DB) (int, error) {
		cleared := map[string]any{
			"lease_owner":      "",
			"lease_expires_at": nil,
			"last_error":       leaseExpiredMessage,
			"version":          gorm.Expr("version + 1"),
			"updated_at":       now,
		}

		failed := map[string]any{"state": string(job.StateFailed), "finished_at": now}
		for k, v := range cleared {
			failed[k] = v
		}
		exhausted := tx.Model(&JobModel{}).
			Where("state = ? AND lease_expires_at < ? AND attempts >= max_attempts", string(job.StateActive), now).
			Updates(failed)
		if exhausted.Error != nil {
			return 0, fmt.Errorf("fail expired jobs: %w", exhausted.Error)
		}

		waiting := map[string]any{"state": string(job.StateWaiting), "run_after": now}
		for k, v := range cleared {
			waiting[k] = v
		}
		requeued := tx.Model(&JobModel{}).
			Where("state = ? AND lease_expires_at < ?", string(job.StateActive), now).
			Updates(waiting)
		if requeued.Error != nil {
			return 0, fmt.Errorf("requeue expired jobs: %w", requeued.Error)
		}

		return int(exhausted.RowsAffected + requeued.RowsAffected), nil
	})
}

// Counts aggregates the generation's jobs by state without locking.
func (s JobStore) Counts(ctx context.Context, generationID int64) (job.Counts, error) {
	var rows []struct {
		State string
		N     int64
	}
	err := s.DB(ctx).Model(&JobModel{}).
		Select("state, COUNT(*) AS n").
		Where("generation_id = ?", generationID).
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return job.Counts{}, fmt.Errorf("count jobs: %w", err)
	}

	var c job.Counts
	for _, r := range rows {
		switch job.State(r.State) {
		case job.StateWaiting:
			c.Waiting = r.N
		case job.StateActive:
			c.Active = r.N
		case job.StateCompleted:
			c.Completed = r.N
		case job.StateFailed:
			c.Failed = r.N
		}
	}
	return c, nil
}

// Get retrieves a job by ID.
func (s JobStore) Get(ctx context.Context, id int64) (job.Job, error) {
	j, err := s.FindOne(ctx, repository.WithID(id))
	if err != nil {
		return job.Job{}, fmt.Errorf("get job %d: %w", id, err)
	}
	return j, nil
}
