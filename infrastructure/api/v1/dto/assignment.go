package dto

import "github.com/helixml/codeframe/domain/assignment"

// AssignmentRequest applies the codeframe to answers.
type AssignmentRequest struct {
	Threshold *float64 `json:"threshold"`
	AnswerIDs []int64  `json:"answer_ids,omitempty"`
	Actor     string   `json:"actor,omitempty"`
	// Async queues the run as a job instead of classifying inline.
	Async bool `json:"async,omitempty"`
}

// AssignmentResponse reports a synchronous run.
type AssignmentResponse struct {
	Data assignment.Summary `json:"data"`
}

// QueuedResponse reports a queued job.
type QueuedResponse struct {
	JobID int64 `json:"job_id"`
}
