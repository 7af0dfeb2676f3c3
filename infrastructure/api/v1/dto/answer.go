package dto

import (
	"time"

	"github.com/helixml/codeframe/domain/answer"
	"github.com/helixml/codeframe/infrastructure/api/jsonapi"
)

// AnswersRequest imports answers into a category.
type AnswersRequest struct {
	Texts []string `json:"texts"`
}

// AnswerResponse represents an answer in API responses.
type AnswerResponse struct {
	ID         int64     `json:"id"`
	CategoryID int64     `json:"category_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// AnswerListResponse represents a list of answers.
type AnswerListResponse struct {
	Data  []AnswerResponse `json:"data"`
	Meta  *jsonapi.Meta    `json:"meta,omitempty"`
	Links *jsonapi.Links   `json:"links,omitempty"`
}

// NewAnswerListResponse converts domain answers.
func NewAnswerListResponse(answers []answer.Answer) AnswerListResponse {
	data := make([]AnswerResponse, len(answers))
	for i, a := range answers {
		data[i] = AnswerResponse{
			ID:         a.ID(),
			CategoryID: a.CategoryID(),
			Text:       a.Text(),
			CreatedAt:  a.CreatedAt(),
		}
	}
	return AnswerListResponse{Data: data}
}
