// Package answer holds the open-ended survey answers a codeframe is built from.
package answer

import (
	"context"
	"strings"
	"time"

	"github.com/helixml/codeframe/domain/repository"
)

// Answer is one open-ended survey response within a category.
type Answer struct {
	id         int64
	categoryID int64
	text       string
	createdAt  time.Time
}

// NewAnswer creates an Answer that has not been persisted yet.
func NewAnswer(categoryID int64, text string) Answer {
	return Answer{
		categoryID: categoryID,
		text:       text,
	}
}

// Reconstruct rebuilds an Answer from storage.
func Reconstruct(id, categoryID int64, text string, createdAt time.Time) Answer {
	return Answer{
		id:         id,
		categoryID: categoryID,
		text:       text,
		createdAt:  createdAt,
	}
}

// ID returns the answer ID.
func (a Answer) ID() int64 { return a.id }

// CategoryID returns the owning category.
func (a Answer) CategoryID() int64 { return a.categoryID }

// Text returns the raw answer text.
func (a Answer) Text() string { return a.text }

// CreatedAt returns when the answer was stored.
func (a Answer) CreatedAt() time.Time { return a.createdAt }

// IsBlank reports whether the answer has no usable text.
func (a Answer) IsBlank() bool {
	return strings.TrimSpace(a.text) == ""
}

// Store persists answers.
type Store interface {
	Find(ctx context.Context, options ...repository.Option) ([]Answer, error)
	Count(ctx context.Context, options ...repository.Option) (int64, error)
	// FindUncategorized returns the category's answers without an assignment record.
	FindUncategorized(ctx context.Context, categoryID int64) ([]Answer, error)
	SaveAll(ctx context.Context, answers []Answer) ([]Answer, error)
}

// WithIDs filters answers by ID.
func WithIDs(ids []int64) repository.Option {
	return repository.WithIDIn(ids)
}

// IDs returns the IDs of the given answers, in order.
func IDs(answers []Answer) []int64 {
	ids := make([]int64, len(answers))
	for i, a := range answers {
		ids[i] = a.id
	}
	return ids
}
