package dto

import (
	"time"

	"github.com/helixml/codeframe/domain/job"
	"github.com/helixml/codeframe/infrastructure/api/jsonapi"
)

// JobResponse represents a queued job in API responses.
type JobResponse struct {
	ID           int64      `json:"id"`
	GenerationID int64      `json:"generation_id"`
	Kind         string     `json:"kind"`
	State        string     `json:"state"`
	Priority     int        `json:"priority"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	RunAfter     time.Time  `json:"run_after"`
	LastError    string     `json:"last_error,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// JobListResponse represents a list of jobs.
type JobListResponse struct {
	Data  []JobResponse  `json:"data"`
	Meta  *jsonapi.Meta  `json:"meta,omitempty"`
	Links *jsonapi.Links `json:"links,omitempty"`
}

// NewJobResponse converts a domain job.
func NewJobResponse(j job.Job) JobResponse {
	return JobResponse{
		ID:           j.ID(),
		GenerationID: j.GenerationID(),
		Kind:         string(j.Kind()),
		State:        string(j.State()),
		Priority:     j.Priority(),
		Attempts:     j.Attempts(),
		MaxAttempts:  j.MaxAttempts(),
		RunAfter:     j.RunAfter(),
		LastError:    j.LastError(),
		FinishedAt:   j.FinishedAt(),
		CreatedAt:    j.CreatedAt(),
		UpdatedAt:    j.UpdatedAt(),
	}
}
