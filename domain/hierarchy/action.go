package hierarchy

import (
	"fmt"
	"strings"

	"github.com/helixml/codeframe/domain"
)

// ActionKind names a structural edit.
type ActionKind string

// ActionKind values.
const (
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
	ActionAdd    ActionKind = "add"
	ActionMove   ActionKind = "move"
	ActionMerge  ActionKind = "merge"
)

// Action is one human edit of a generation's hierarchy.
type Action interface {
	Kind() ActionKind
	Validate() error
}

// UpdateAction renames a node or patches its descriptive fields.
type UpdateAction struct {
	NodeID          int64
	ExpectedVersion int64
	Patch           Patch
}

// Kind implements Action.
func (UpdateAction) Kind() ActionKind { return ActionUpdate }

// Validate implements Action.
func (a UpdateAction) Validate() error {
	if err := requireNode(a.NodeID, a.ExpectedVersion); err != nil {
		return err
	}
	return a.Patch.Validate()
}

// DeleteAction removes a node. With ReparentChildren its children move to
// the deleted node's parent; otherwise the whole subtree is removed.
type DeleteAction struct {
	NodeID           int64
	ExpectedVersion  int64
	ReparentChildren bool
}

// Kind implements Action.
func (DeleteAction) Kind() ActionKind { return ActionDelete }

// Validate implements Action.
func (a DeleteAction) Validate() error {
	return requireNode(a.NodeID, a.ExpectedVersion)
}

// AddAction creates a manual node. A nil Position appends after the last sibling.
type AddAction struct {
	ParentID     *int64
	Name         string
	Description  string
	Confidence   Confidence
	Frequency    Frequency
	ExampleTexts []string
	Position     *int
}

// Kind implements Action.
func (AddAction) Kind() ActionKind { return ActionAdd }

// Validate implements Action.
func (a AddAction) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", domain.ErrValidation)
	}
	if _, err := ParseConfidence(string(a.Confidence)); err != nil {
		return err
	}
	if _, err := ParseFrequency(string(a.Frequency)); err != nil {
		return err
	}
	if a.Position != nil && *a.Position < 0 {
		return fmt.Errorf("%w: position must not be negative", domain.ErrValidation)
	}
	return nil
}

// Node returns the manual node the action creates.
func (a AddAction) Node(generationID int64) Node {
	return NewManualNode(generationID, a.ParentID, strings.TrimSpace(a.Name), a.Description, a.Confidence, a.Frequency, a.ExampleTexts)
}

// MoveAction reparents and/or reorders a node.
type MoveAction struct {
	NodeID          int64
	ExpectedVersion int64
	NewParentID     *int64
	NewOrder        int
}

// Kind implements Action.
func (MoveAction) Kind() ActionKind { return ActionMove }

// Validate implements Action.
func (a MoveAction) Validate() error {
	if err := requireNode(a.NodeID, a.ExpectedVersion); err != nil {
		return err
	}
	if a.NewParentID != nil && *a.NewParentID == a.NodeID {
		return fmt.Errorf("%w: a node cannot be its own parent", domain.ErrValidation)
	}
	if a.NewOrder < 0 {
		return fmt.Errorf("%w: new_order must not be negative", domain.ErrValidation)
	}
	return nil
}

// MergeAction folds source nodes into a target node. SourceVersions holds
// the expected version of every source.
type MergeAction struct {
	TargetID        int64
	ExpectedVersion int64
	SourceIDs       []int64
	SourceVersions  map[int64]int64
}

// Kind implements Action.
func (MergeAction) Kind() ActionKind { return ActionMerge }

// Validate implements Action.
func (a MergeAction) Validate() error {
	if err := requireNode(a.TargetID, a.ExpectedVersion); err != nil {
		return err
	}
	if len(a.SourceIDs) == 0 {
		return fmt.Errorf("%w: merge needs at least one source", domain.ErrValidation)
	}
	seen := make(map[int64]bool, len(a.SourceIDs))
	for _, id := range a.SourceIDs {
		if id == a.TargetID {
			return fmt.Errorf("%w: cannot merge a node into itself", domain.ErrValidation)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate source %d", domain.ErrValidation, id)
		}
		seen[id] = true
		if a.SourceVersions[id] <= 0 {
			return fmt.Errorf("%w: expected version of source %d is required", domain.ErrValidation, id)
		}
	}
	for id := range a.SourceVersions {
		if !seen[id] {
			return fmt.Errorf("%w: version given for %d, which is not a source", domain.ErrValidation, id)
		}
	}
	return nil
}

// Result describes the outcome of an action.
type Result struct {
	Kind        ActionKind
	Node        *Node
	AffectedIDs []int64
	RemovedIDs  []int64
}

func requireNode(id, version int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: node id is required", domain.ErrValidation)
	}
	if version <= 0 {
		return fmt.Errorf("%w: expected_version is required", domain.ErrValidation)
	}
	return nil
}
