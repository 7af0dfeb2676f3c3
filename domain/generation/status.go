package generation

import (
	"fmt"
	"slices"

	"github.com/helixml/codeframe/domain"
)

// Status is a generation's lifecycle state.
type Status string

// Status values.
const (
	StatusPending            Status = "pending"
	StatusEmbedding          Status = "embedding"
	StatusClustering         Status = "clustering"
	StatusLabeling           Status = "labeling"
	StatusCompleted          Status = "completed"
	StatusPartiallyCompleted Status = "partially_completed"
	StatusFailed             Status = "failed"
	StatusCancelled          Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusEmbedding, StatusFailed, StatusCancelled},
	StatusEmbedding:  {StatusClustering, StatusFailed, StatusCancelled},
	StatusClustering: {StatusLabeling, StatusFailed, StatusCancelled},
	StatusLabeling:   {StatusCompleted, StatusPartiallyCompleted, StatusFailed, StatusCancelled},
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if st.IsTerminal() || slices.Contains(ActiveStatuses(), st) {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", domain.ErrValidation, s)
}

// ActiveStatuses lists the non-terminal states. At most one generation per
// category may be in one of them.
func ActiveStatuses() []Status {
	return []Status{StatusPending, StatusEmbedding, StatusClustering, StatusLabeling}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusPartiallyCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsFailure reports whether the generation ended without a usable codeframe.
// Cancellation counts as a failure.
func (s Status) IsFailure() bool {
	return s == StatusFailed || s == StatusCancelled
}

// IsFinalized reports whether the hierarchy can be used for assignment.
func (s Status) IsFinalized() bool {
	return s == StatusCompleted || s == StatusPartiallyCompleted
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	return slices.Contains(transitions[s], next)
}
