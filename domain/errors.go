// Package domain holds the error taxonomy shared by every codeframe package.
package domain

import "errors"

var (
	// ErrValidation rejects bad input or configuration before any paid AI call.
	ErrValidation = errors.New("validation error")

	// ErrEmbeddingMismatch means the embedding provider broke its contract
	// (wrong vector count or non-uniform dimensionality).
	ErrEmbeddingMismatch = errors.New("embedding mismatch")

	// ErrInsufficientData means clustering produced no viable cluster.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrJobPermanentFailure marks a job that exhausted its retries.
	ErrJobPermanentFailure = errors.New("job permanently failed")

	// ErrConcurrencyConflict is an optimistic-lock failure on a hierarchy edit.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrGenerationInProgress rejects a second active generation for a category.
	ErrGenerationInProgress = errors.New("generation in progress")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidTransition rejects a generation status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrRateLimited is returned by providers that throttled the request.
	ErrRateLimited = errors.New("rate limited")
)
