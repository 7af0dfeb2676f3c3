package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/generation"
	"github.com/helixml/codeframe/domain/hierarchy"
)

// Hierarchy serves a generation's codeframe and applies human edits to it.
type Hierarchy struct {
	store       hierarchy.Store
	generations generation.Store
	logger      *slog.Logger
}

// NewHierarchy creates the hierarchy service.
func NewHierarchy(store hierarchy.Store, generations generation.Store, logger *slog.Logger) *Hierarchy {
	return &Hierarchy{store: store, generations: generations, logger: logger}
}

// Flat returns the generation's nodes in tree order.
func (s *Hierarchy) Flat(ctx context.Context, generationID int64) ([]hierarchy.Node, error) {
	tree, err := s.Tree(ctx, generationID)
	if err != nil {
		return nil, err
	}
	return hierarchy.Flatten(tree), nil
}

// Tree returns the ordered tree derived from the stored flat list.
func (s *Hierarchy) Tree(ctx context.Context, generationID int64) ([]hierarchy.TreeNode, error) {
	if _, err := s.generations.Get(ctx, generationID); err != nil {
		return nil, err
	}
	nodes, err := s.store.Flat(ctx, generationID)
	if err != nil {
		return nil, err
	}
	return hierarchy.BuildTree(nodes), nil
}

// Apply runs one edit against the generation's hierarchy. Nodes named by the
// action must belong to the generation.
func (s *Hierarchy) Apply(ctx context.Context, generationID int64, action hierarchy.Action, actor string) (hierarchy.Result, error) {
	if action == nil {
		return hierarchy.Result{}, fmt.Errorf("%w: action is required", domain.ErrValidation)
	}
	if err := action.Validate(); err != nil {
		return hierarchy.Result{}, err
	}
	if _, err := s.generations.Get(ctx, generationID); err != nil {
		return hierarchy.Result{}, err
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = SystemActor
	}

	var result hierarchy.Result
	var err error
	switch a := action.(type) {
	case hierarchy.UpdateAction:
		if err = s.owned(ctx, generationID, a.NodeID); err == nil {
			result, err = single(s.store.Update(ctx, a, actor))
		}
	case hierarchy.AddAction:
		if a.ParentID != nil {
			err = s.owned(ctx, generationID, *a.ParentID)
		}
		if err == nil {
			result, err = single(s.store.Add(ctx, generationID, a, actor))
		}
	case hierarchy.MoveAction:
		if err = s.owned(ctx, generationID, a.NodeID); err == nil && a.NewParentID != nil {
			err = s.owned(ctx, generationID, *a.NewParentID)
		}
		if err == nil {
			result, err = single(s.store.Move(ctx, a, actor))
		}
	case hierarchy.DeleteAction:
		if err = s.owned(ctx, generationID, a.NodeID); err == nil {
			result, err = s.store.Delete(ctx, a, actor)
		}
	case hierarchy.MergeAction:
		err = s.owned(ctx, generationID, a.TargetID)
		for _, id := range a.SourceIDs {
			if err != nil {
				break
			}
			err = s.owned(ctx, generationID, id)
		}
		if err == nil {
			result, err = s.store.Merge(ctx, a, actor)
		}
	default:
		err = fmt.Errorf("%w: unknown action %q", domain.ErrValidation, action.Kind())
	}
	if err != nil {
		return hierarchy.Result{}, err
	}
	result.Kind = action.Kind()

	s.logger.Info("hierarchy edited",
		slog.Int64("generation_id", generationID),
		slog.String("action", string(action.Kind())),
		slog.String("actor", actor),
		slog.Int("affected", len(result.AffectedIDs)),
		slog.Int("removed", len(result.RemovedIDs)),
	)
	return result, nil
}

func (s *Hierarchy) owned(ctx context.Context, generationID, nodeID int64) error {
	n, err := s.store.Get(ctx, nodeID)
	if err != nil {
		return err
	}
	if n.GenerationID() != generationID {
		return fmt.Errorf("node %d in generation %d: %w", nodeID, generationID, domain.ErrNotFound)
	}
	return nil
}

func single(n hierarchy.Node, err error) (hierarchy.Result, error) {
	if err != nil {
		return hierarchy.Result{}, err
	}
	return hierarchy.Result{Node: &n, AffectedIDs: []int64{n.ID()}}, nil
}
