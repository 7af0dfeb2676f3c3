package dto

import (
	"time"

	"github.com/helixml/codeframe/domain/cluster"
	"github.com/helixml/codeframe/domain/generation"
	"github.com/helixml/codeframe/domain/job"
	"github.com/helixml/codeframe/infrastructure/api/jsonapi"
)

// GenerationRequest starts a generation.
type GenerationRequest struct {
	CategoryID     int64           `json:"category_id"`
	AnswerIDs      []int64         `json:"answer_ids,omitempty"`
	TargetLanguage string          `json:"target_language,omitempty"`
	Algorithm      *cluster.Config `json:"algorithm,omitempty"`
	Actor          string          `json:"actor,omitempty"`
}

// CancelRequest cancels a generation.
type CancelRequest struct {
	Actor string `json:"actor,omitempty"`
}

// GenerationResponse represents a generation in API responses.
type GenerationResponse struct {
	ID                 int64          `json:"id"`
	CategoryID         int64          `json:"category_id"`
	Status             string         `json:"status"`
	IsFailure          bool           `json:"is_failure"`
	RequestedAnswerIDs []int64        `json:"requested_answer_ids,omitempty"`
	Algorithm          cluster.Config `json:"algorithm"`
	TargetLanguage     string         `json:"target_language"`
	CreatedBy          string         `json:"created_by,omitempty"`
	ErrorDetail        string         `json:"error_detail,omitempty"`
	NThemes            int            `json:"n_themes"`
	NCodes             int            `json:"n_codes"`
	TotalJobs          int            `json:"total_jobs"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// GenerationStatusResponse is a generation with its job counts.
type GenerationStatusResponse struct {
	Data GenerationResponse `json:"data"`
	Jobs job.Counts         `json:"jobs"`
}

// GenerationListResponse represents a list of generations.
type GenerationListResponse struct {
	Data []GenerationResponse `json:"data"`
	Meta *jsonapi.Meta        `json:"meta,omitempty"`
}

// NewGenerationResponse converts a domain generation.
func NewGenerationResponse(g generation.Generation) GenerationResponse {
	return GenerationResponse{
		ID:                 g.ID(),
		CategoryID:         g.CategoryID(),
		Status:             string(g.Status()),
		IsFailure:          g.Status().IsFailure(),
		RequestedAnswerIDs: g.RequestedAnswerIDs(),
		Algorithm:          g.Config(),
		TargetLanguage:     g.TargetLanguage(),
		CreatedBy:          g.CreatedBy(),
		ErrorDetail:        g.ErrorDetail(),
		NThemes:            g.NThemes(),
		NCodes:             g.NCodes(),
		TotalJobs:          g.TotalJobs(),
		CreatedAt:          g.CreatedAt(),
		UpdatedAt:          g.UpdatedAt(),
		CompletedAt:        g.CompletedAt(),
	}
}

// NewGenerationListResponse converts a list of generations.
func NewGenerationListResponse(gens []generation.Generation) GenerationListResponse {
	data := make([]GenerationResponse, len(gens))
	for i, g := range gens {
		data[i] = NewGenerationResponse(g)
	}
	return GenerationListResponse{
		Data: data,
		Meta: &jsonapi.Meta{"total_count": len(gens)},
	}
}
