package persistence

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/hierarchy"
	"github.com/helixml/codeframe/domain/repository"
	"github.com/helixml/codeframe/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HierarchyStore implements hierarchy.Store using GORM.
//
// Every write takes the owning generation's row lock first (PostgreSQL) so
// label jobs and editors touching the same generation are serialized; the
// per-node version check then decides whether a human edit still applies.
type HierarchyStore struct {
	database.Repository[hierarchy.Node, HierarchyNodeModel]
}

// NewHierarchyStore creates a new HierarchyStore.
func NewHierarchyStore(db database.Database) HierarchyStore {
	return HierarchyStore{
		Repository: database.NewRepository[hierarchy.Node, HierarchyNodeModel](db, NodeMapper{}, "hierarchy node"),
	}
}

// Flat returns the generation's nodes ordered by display order, then id.
func (s HierarchyStore) Flat(ctx context.Context, generationID int64) ([]hierarchy.Node, error) {
	return s.Find(ctx,
		repository.WithGenerationID(generationID),
		repository.WithOrderAsc("display_order"),
		repository.WithOrderAsc("id"),
	)
}

// Get retrieves a node by ID.
func (s HierarchyStore) Get(ctx context.Context, id int64) (hierarchy.Node, error) {
	n, err := s.FindOne(ctx, repository.WithID(id))
	if err != nil {
		return hierarchy.Node{}, fmt.Errorf("get node %d: %w", id, err)
	}
	return n, nil
}

// FindByCluster returns the node created for a cluster.
func (s HierarchyStore) FindByCluster(ctx context.Context, generationID int64, clusterID int) (hierarchy.Node, bool, error) {
	var models []HierarchyNodeModel
	err := s.DB(ctx).
		Where("generation_id = ? AND cluster_id = ?", generationID, clusterID).
		Limit(1).
		Find(&models).Error
	if err != nil {
		return hierarchy.Node{}, false, fmt.Errorf("find node for cluster %d: %w", clusterID, err)
	}
	if len(models) == 0 {
		return hierarchy.Node{}, false, nil
	}
	return s.Mapper().ToDomain(models[0]), true, nil
}

// IsTombstoned reports whether an editor removed the cluster's node.
func (s HierarchyStore) IsTombstoned(ctx context.Context, generationID int64, clusterID int) (bool, error) {
	return isTombstoned(s.DB(ctx), generationID, clusterID)
}

// Count returns the number of root nodes and of all nodes.
func (s HierarchyStore) Count(ctx context.Context, generationID int64) (int64, int64, error) {
	total, err := s.Repository.Count(ctx, repository.WithGenerationID(generationID))
	if err != nil {
		return 0, 0, err
	}
	roots, err := s.Repository.Count(ctx,
		repository.WithGenerationID(generationID),
		repository.WithConditionNull("parent_id"),
	)
	if err != nil {
		return 0, 0, err
	}
	return roots, total, nil
}

// InsertAuto writes a label-stage node. Re-running a cluster job overwrites
// the unedited node it produced earlier instead of appending a duplicate.
func (s HierarchyStore) InsertAuto(ctx context.Context, node hierarchy.Node) (hierarchy.Node, error) {
	clusterID := node.ClusterID()
	if clusterID == nil {
		return hierarchy.Node{}, fmt.Errorf("%w: auto node without cluster", domain.ErrValidation)
	}

	return database.WithTransactionResult(ctx, s.Database(), func(tx *gorm.DB) (hierarchy.Node, error) {
		if err := lockGeneration(tx, node.GenerationID()); err != nil {
			return hierarchy.Node{}, err
		}

		tombstoned, err := isTombstoned(tx, node.GenerationID(), *clusterID)
		if err != nil {
			return hierarchy.Node{}, err
		}
		if tombstoned {
			return hierarchy.Node{}, fmt.Errorf("cluster %d: %w", *clusterID, hierarchy.ErrTombstoned)
		}

		var existing []HierarchyNodeModel
		err = tx.Where("generation_id = ? AND cluster_id = ?", node.GenerationID(), *clusterID).
			Limit(1).Find(&existing).Error
		if err != nil {
			return hierarchy.Node{}, fmt.Errorf("find node for cluster %d: %w", *clusterID, err)
		}
		if len(existing) > 0 {
			current := existing[0]
			if current.IsEdited {
				return s.Mapper().ToDomain(current), nil
			}
			fresh := s.Mapper().ToModel(node)
			err := tx.Model(&HierarchyNodeModel{}).
				Where("id = ? AND version = ?", current.ID, current.Version).
				Updates(map[string]any{
					"name":               fresh.Name,
					"description":        fresh.Description,
					"confidence":         fresh.Confidence,
					"frequency_estimate": fresh.Frequency,
					"example_texts":      fresh.ExampleTexts,
					"version":            gorm.Expr("version + 1"),
					"updated_at":         time.Now().UTC(),
				}).Error
			if err != nil {
				return hierarchy.Node{}, fmt.Errorf("overwrite node %d: %w", current.ID, err)
			}
			return loadNode(tx, s.Mapper(), current.ID)
		}

		parentID := node.ParentID()
		if parentID != nil {
			ok, err := nodeExists(tx, node.GenerationID(), *parentID)
			if err != nil {
				return hierarchy.Node{}, err
			}
			if !ok {
				parentID = nil
			}
		}

		order, err := nextDisplayOrder(tx, node.GenerationID(), parentID)
		if err != nil {
			return hierarchy.Node{}, err
		}

		model := s.Mapper().ToModel(node.WithParent(parentID, order))
		model.ID = 0
		model.Version = 1
		if err := tx.Create(&model).Error; err != nil {
			return hierarchy.Node{}, fmt.Errorf("insert node for cluster %d: %w", *clusterID, err)
		}
		return s.Mapper().ToDomain(model), nil
	})
}

// Update patches a node's descriptive fields.
func (s HierarchyStore) Update(ctx context.Context, action hierarchy.UpdateAction, actor string) (hierarchy.Node, error) {
	if err := action.Validate(); err != nil {
		return hierarchy.Node{}, err
	}
	return s.edit(ctx, action.NodeID, action.ExpectedVersion, actor, func(e *editSet, target hierarchy.Node) (hierarchy.Node, error) {
		updated := target.Apply(action.Patch, actor, e.now)
		e.put(updated)
		return updated, nil
	})
}

// Add creates a manual node under ParentID at Position.
func (s HierarchyStore) Add(ctx context.Context, generationID int64, action hierarchy.AddAction, actor string) (hierarchy.Node, error) {
	if err := action.Validate(); err != nil {
		return hierarchy.Node{}, err
	}

	return database.WithTransactionResult(ctx, s.Database(), func(tx *gorm.DB) (hierarchy.Node, error) {
		if err := lockGeneration(tx, generationID); err != nil {
			return hierarchy.Node{}, err
		}
		e, err := loadEditSet(tx, s.Mapper(), generationID, actor)
		if err != nil {
			return hierarchy.Node{}, err
		}
		if action.ParentID != nil {
			if _, ok := e.nodes[*action.ParentID]; !ok {
				return hierarchy.Node{}, fmt.Errorf("%w: parent %d is not in generation %d",
					domain.ErrValidation, *action.ParentID, generationID)
			}
		}

		position := -1
		if action.Position != nil {
			position = *action.Position
		}
		siblings := e.siblings(action.ParentID, 0)
		placed := hierarchy.Insert(siblings, action.Node(generationID), position)

		var created hierarchy.Node
		for _, n := range placed {
			if n.ID() != 0 {
				e.put(n)
				continue
			}
			created = n.Edited(actor, fmt.Sprintf("added %q", n.Name()), e.now)
		}

		model := s.Mapper().ToModel(created)
		model.Version = 1
		if err := tx.Create(&model).Error; err != nil {
			return hierarchy.Node{}, fmt.Errorf("insert node: %w", err)
		}
		if err := e.flush(tx, s.Mapper()); err != nil {
			return hierarchy.Node{}, err
		}
		return s.Mapper().ToDomain(model), nil
	})
}

// Move reparents and/or reorders a node. A parent inside the node's own
// subtree is rejected.
func (s HierarchyStore) Move(ctx context.Context, action hierarchy.MoveAction, actor string) (hierarchy.Node, error) {
	if err := action.Validate(); err != nil {
		return hierarchy.Node{}, err
	}
	return s.edit(ctx, action.NodeID, action.ExpectedVersion, actor, func(e *editSet, target hierarchy.Node) (hierarchy.Node, error) {
		if action.NewParentID != nil {
			if _, ok := e.nodes[*action.NewParentID]; !ok {
				return hierarchy.Node{}, fmt.Errorf("%w: parent %d is not in generation %d",
					domain.ErrValidation, *action.NewParentID, target.GenerationID())
			}
		}
		if hierarchy.WouldCycle(e.list(), target.ID(), action.NewParentID) {
			return hierarchy.Node{}, fmt.Errorf("%w: moving node %d under %d would create a cycle",
				domain.ErrValidation, target.ID(), *action.NewParentID)
		}

		oldParent := target.ParentID()
		placed := hierarchy.Insert(e.siblings(action.NewParentID, target.ID()), target.WithParent(action.NewParentID, 0), action.NewOrder)

		var moved hierarchy.Node
		for _, n := range placed {
			if n.ID() == target.ID() {
				moved = n.Edited(actor, describeMove(action.NewParentID, n.DisplayOrder()), e.now)
				e.put(moved)
				continue
			}
			e.put(n)
		}
		if !sameParent(oldParent, action.NewParentID) {
			e.compact(oldParent)
		}
		return moved, nil
	})
}

// Delete removes a node. With ReparentChildren the children take the
// deleted node's place under its parent; otherwise the subtree goes too.
// Removed cluster nodes are tombstoned so their label jobs cannot recreate them.
func (s HierarchyStore) Delete(ctx context.Context, action hierarchy.DeleteAction, actor string) (hierarchy.Result, error) {
	if err := action.Validate(); err != nil {
		return hierarchy.Result{}, err
	}
	var result hierarchy.Result
	_, err := s.edit(ctx, action.NodeID, action.ExpectedVersion, actor, func(e *editSet, target hierarchy.Node) (hierarchy.Node, error) {
		parent := target.ParentID()
		children := e.siblings(ptrTo(target.ID()), 0)

		if action.ReparentChildren {
			all := e.siblings(parent, 0)
			pos := slices.IndexFunc(all, func(n hierarchy.Node) bool { return n.ID() == target.ID() })
			ordered := make([]hierarchy.Node, 0, len(all)-1+len(children))
			ordered = append(ordered, all[:pos]...)
			for _, c := range children {
				ordered = append(ordered, c.WithParent(parent, 0).
					Edited(actor, fmt.Sprintf("reparented after %q was deleted", target.Name()), e.now))
			}
			ordered = append(ordered, all[pos+1:]...)
			e.remove(target.ID())
			for _, n := range hierarchy.Renumber(ordered) {
				e.put(n)
			}
		} else {
			for id := range hierarchy.Descendants(e.list(), target.ID()) {
				e.remove(id)
			}
			e.remove(target.ID())
			e.compact(parent)
		}

		result = hierarchy.Result{Kind: hierarchy.ActionDelete}
		return target, nil
	}, func(e *editSet) {
		result.AffectedIDs = e.dirtyIDs()
		result.RemovedIDs = e.removedIDs()
	})
	if err != nil {
		return hierarchy.Result{}, err
	}
	return result, nil
}

// Merge folds the sources into the target: their children move under the
// target, their examples and assignments are carried over, and the sources
// are deleted.
func (s HierarchyStore) Merge(ctx context.Context, action hierarchy.MergeAction, actor string) (hierarchy.Result, error) {
	if err := action.Validate(); err != nil {
		return hierarchy.Result{}, err
	}
	var result hierarchy.Result
	_, err := s.edit(ctx, action.TargetID, action.ExpectedVersion, actor, func(e *editSet, target hierarchy.Node) (hierarchy.Node, error) {
		sources := make([]hierarchy.Node, 0, len(action.SourceIDs))
		removing := make(map[int64]bool, len(action.SourceIDs))
		for _, id := range action.SourceIDs {
			src, ok := e.nodes[id]
			if !ok {
				return hierarchy.Node{}, fmt.Errorf("%w: merge source %d in generation %d",
					domain.ErrNotFound, id, target.GenerationID())
			}
			if want := action.SourceVersions[id]; src.Version() != want {
				return hierarchy.Node{}, fmt.Errorf("%w: source %d is at version %d, expected %d",
					domain.ErrConcurrencyConflict, id, src.Version(), want)
			}
			if hierarchy.Descendants(e.list(), id)[target.ID()] {
				return hierarchy.Node{}, fmt.Errorf("%w: target %d lies inside source %d",
					domain.ErrValidation, target.ID(), id)
			}
			sources = append(sources, src)
			removing[id] = true
		}

		targetID := target.ID()
		var adopted []hierarchy.Node
		for _, c := range e.siblings(&targetID, 0) {
			if !removing[c.ID()] {
				adopted = append(adopted, c)
			}
		}
		examples := target.ExampleTexts()
		var names []string
		affectedParents := make([]*int64, 0, len(sources))
		for _, src := range sources {
			for _, c := range e.siblings(ptrTo(src.ID()), 0) {
				if removing[c.ID()] {
					continue
				}
				adopted = append(adopted, c.WithParent(&targetID, 0).
					Edited(actor, fmt.Sprintf("moved from merged %q", src.Name()), e.now))
			}
			examples = appendUnique(examples, src.ExampleTexts())
			names = append(names, fmt.Sprintf("%q", src.Name()))
			affectedParents = append(affectedParents, src.ParentID())
		}
		for id := range removing {
			e.remove(id)
		}
		for _, n := range hierarchy.Renumber(adopted) {
			e.put(n)
		}
		for _, p := range affectedParents {
			e.compact(p)
		}

		merged := target.
			WithLabel(target.Name(), target.Description(), target.Confidence(), target.Frequency(), examples).
			Edited(actor, "merged "+strings.Join(names, ", "), e.now)
		e.put(merged)
		e.mergeInto = targetID

		result = hierarchy.Result{Kind: hierarchy.ActionMerge}
		return merged, nil
	}, func(e *editSet) {
		result.AffectedIDs = e.dirtyIDs()
		result.RemovedIDs = e.removedIDs()
	})
	if err != nil {
		return hierarchy.Result{}, err
	}
	n, err := s.Get(ctx, action.TargetID)
	if err != nil {
		return hierarchy.Result{}, err
	}
	result.Node = &n
	return result, nil
}

// edit runs a human action against a consistent snapshot of the target's
// generation and writes the changed nodes back with version checks.
func (s HierarchyStore) edit(
	ctx context.Context,
	nodeID, expectedVersion int64,
	actor string,
	fn func(e *editSet, target hierarchy.Node) (hierarchy.Node, error),
	after ...func(e *editSet),
) (hierarchy.Node, error) {
	var generationID int64
	err := s.DB(ctx).Model(&HierarchyNodeModel{}).Select("generation_id").
		Where("id = ?", nodeID).Scan(&generationID).Error
	if err != nil {
		return hierarchy.Node{}, fmt.Errorf("find node %d: %w", nodeID, err)
	}
	if generationID == 0 {
		return hierarchy.Node{}, fmt.Errorf("%w: node %d", domain.ErrNotFound, nodeID)
	}

	return database.WithTransactionResult(ctx, s.Database(), func(tx *gorm.DB) (hierarchy.Node, error) {
		if err := lockGeneration(tx, generationID); err != nil {
			return hierarchy.Node{}, err
		}
		e, err := loadEditSet(tx, s.Mapper(), generationID, actor)
		if err != nil {
			return hierarchy.Node{}, err
		}
		target, ok := e.nodes[nodeID]
		if !ok {
			return hierarchy.Node{}, fmt.Errorf("%w: node %d", domain.ErrNotFound, nodeID)
		}
		if target.Version() != expectedVersion {
			return hierarchy.Node{}, fmt.Errorf("%w: node %d is at version %d, expected %d",
				domain.ErrConcurrencyConflict, nodeID, target.Version(), expectedVersion)
		}

		out, err := fn(e, target)
		if err != nil {
			return hierarchy.Node{}, err
		}
		if err := e.flush(tx, s.Mapper()); err != nil {
			return hierarchy.Node{}, err
		}
		if err := e.applyRemovals(tx); err != nil {
			return hierarchy.Node{}, err
		}
		for _, fn := range after {
			fn(e)
		}
		if e.isRemoved(out.ID()) {
			return out, nil
		}
		return loadNode(tx, s.Mapper(), out.ID())
	})
}

// editSet is an in-memory working copy of a generation's nodes.
type editSet struct {
	now     time.Time
	actor   string
	nodes   map[int64]hierarchy.Node
	dirty   map[int64]bool
	removed map[int64]hierarchy.Node
	// mergeInto receives the assignments of removed nodes instead of
	// dropping them.
	mergeInto int64
}

func loadEditSet(tx *gorm.DB, mapper database.EntityMapper[hierarchy.Node, HierarchyNodeModel], generationID int64, actor string) (*editSet, error) {
	var models []HierarchyNodeModel
	if err := tx.Where("generation_id = ?", generationID).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load nodes of generation %d: %w", generationID, err)
	}
	e := &editSet{
		now:     time.Now().UTC(),
		actor:   actor,
		nodes:   make(map[int64]hierarchy.Node, len(models)),
		dirty:   make(map[int64]bool),
		removed: make(map[int64]hierarchy.Node),
	}
	for _, m := range models {
		e.nodes[m.ID] = mapper.ToDomain(m)
	}
	return e, nil
}

func (e *editSet) list() []hierarchy.Node {
	out := make([]hierarchy.Node, 0, len(e.nodes))
	for _, n := range e.nodes {
		out = append(out, n)
	}
	hierarchy.SortSiblings(out)
	return out
}

func (e *editSet) siblings(parentID *int64, excludeID int64) []hierarchy.Node {
	return hierarchy.Siblings(e.list(), parentID, excludeID)
}

func (e *editSet) put(n hierarchy.Node) {
	prev, ok := e.nodes[n.ID()]
	if ok && !changed(prev, n) {
		return
	}
	e.nodes[n.ID()] = n
	e.dirty[n.ID()] = true
}

func (e *editSet) remove(id int64) {
	n, ok := e.nodes[id]
	if !ok {
		return
	}
	e.removed[id] = n
	delete(e.nodes, id)
	delete(e.dirty, id)
}

func (e *editSet) isRemoved(id int64) bool {
	_, ok := e.removed[id]
	return ok
}

// compact renumbers a sibling group densely after a node left it.
func (e *editSet) compact(parentID *int64) {
	if parentID != nil {
		if _, ok := e.nodes[*parentID]; !ok {
			return
		}
	}
	for _, n := range hierarchy.Renumber(e.siblings(parentID, 0)) {
		e.put(n)
	}
}

func (e *editSet) dirtyIDs() []int64 {
	ids := make([]int64, 0, len(e.dirty))
	for id := range e.dirty {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (e *editSet) removedIDs() []int64 {
	ids := make([]int64, 0, len(e.removed))
	for id := range e.removed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// flush writes dirty nodes, each guarded by the version it was loaded at.
func (e *editSet) flush(tx *gorm.DB, mapper database.EntityMapper[hierarchy.Node, HierarchyNodeModel]) error {
	for _, id := range e.dirtyIDs() {
		m := mapper.ToModel(e.nodes[id])
		result := tx.Model(&HierarchyNodeModel{}).
			Where("id = ? AND version = ?", m.ID, m.Version).
			Updates(map[string]any{
				"parent_id":          m.ParentID,
				"name":               m.Name,
				"description":        m.Description,
				"confidence":         m.Confidence,
				"frequency_estimate": m.Frequency,
				"example_texts":      m.ExampleTexts,
				"display_order":      m.DisplayOrder,
				"is_edited":          m.IsEdited,
				"edit_history":       m.EditHistory,
				"version":            gorm.Expr("version + 1"),
				"updated_at":         e.now,
			})
		if result.Error != nil {
			return fmt.Errorf("update node %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: node %d changed concurrently", domain.ErrConcurrencyConflict, id)
		}
	}
	return nil
}

// applyRemovals deletes removed nodes, moves or drops their assignments and
// tombstones the clusters they came from.
func (e *editSet) applyRemovals(tx *gorm.DB) error {
	ids := e.removedIDs()
	if len(ids) == 0 {
		return nil
	}

	if e.mergeInto != 0 {
		err := tx.Model(&AssignmentModel{}).
			Where("hierarchy_node_id IN ?", ids).
			Update("hierarchy_node_id", e.mergeInto).Error
		if err != nil {
			return fmt.Errorf("move assignments to node %d: %w", e.mergeInto, err)
		}
	}
	if err := tx.Where("hierarchy_node_id IN ?", ids).Delete(&AssignmentModel{}).Error; err != nil {
		return fmt.Errorf("delete assignments of removed nodes: %w", err)
	}
	if err := tx.Where("id IN ?", ids).Delete(&HierarchyNodeModel{}).Error; err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}

	var tombstones []HierarchyTombstoneModel
	for _, id := range ids {
		n := e.removed[id]
		if cid := n.ClusterID(); cid != nil {
			tombstones = append(tombstones, HierarchyTombstoneModel{
				GenerationID: n.GenerationID(),
				ClusterID:    *cid,
				DeletedBy:    e.actor,
				DeletedAt:    e.now,
			})
		}
	}
	if len(tombstones) == 0 {
		return nil
	}
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&tombstones).Error
	if err != nil {
		return fmt.Errorf("write tombstones: %w", err)
	}
	return nil
}

func lockGeneration(tx *gorm.DB, generationID int64) error {
	var g GenerationModel
	err := database.ForUpdate(tx).Select("id").Where("id = ?", generationID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: generation %d", domain.ErrNotFound, generationID)
	}
	if err != nil {
		return fmt.Errorf("lock generation %d: %w", generationID, err)
	}
	return nil
}

func isTombstoned(db *gorm.DB, generationID int64, clusterID int) (bool, error) {
	var n int64
	err := db.Model(&HierarchyTombstoneModel{}).
		Where("generation_id = ? AND cluster_id = ?", generationID, clusterID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check tombstone for cluster %d: %w", clusterID, err)
	}
	return n > 0, nil
}

func nodeExists(tx *gorm.DB, generationID, id int64) (bool, error) {
	var n int64
	err := tx.Model(&HierarchyNodeModel{}).Where("id = ? AND generation_id = ?", id, generationID).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check node %d: %w", id, err)
	}
	return n > 0, nil
}

func nextDisplayOrder(tx *gorm.DB, generationID int64, parentID *int64) (int, error) {
	q := tx.Model(&HierarchyNodeModel{}).Where("generation_id = ?", generationID)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count siblings: %w", err)
	}
	return int(n), nil
}

func loadNode(tx *gorm.DB, mapper database.EntityMapper[hierarchy.Node, HierarchyNodeModel], id int64) (hierarchy.Node, error) {
	var m HierarchyNodeModel
	if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return hierarchy.Node{}, fmt.Errorf("%w: node %d", domain.ErrNotFound, id)
		}
		return hierarchy.Node{}, fmt.Errorf("load node %d: %w", id, err)
	}
	return mapper.ToDomain(m), nil
}

func changed(a, b hierarchy.Node) bool {
	return !sameParent(a.ParentID(), b.ParentID()) ||
		a.DisplayOrder() != b.DisplayOrder() ||
		a.Name() != b.Name() ||
		a.Description() != b.Description() ||
		a.Confidence() != b.Confidence() ||
		a.Frequency() != b.Frequency() ||
		a.IsEdited() != b.IsEdited() ||
		!slices.Equal(a.ExampleTexts(), b.ExampleTexts()) ||
		len(a.EditHistory()) != len(b.EditHistory())
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func describeMove(parentID *int64, order int) string {
	if parentID == nil {
		return fmt.Sprintf("moved to root at position %d", order)
	}
	return fmt.Sprintf("moved under node %d at position %d", *parentID, order)
}

func appendUnique(dst, src []string) []string {
	seen := make(map[string]bool, len(dst)+len(src))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range src {
		if seen[s] {
			continue
		}
		seen[s] = true
		dst = append(dst, s)
	}
	return dst
}

func ptrTo(v int64) *int64 { return &v }
