package persistence

import (
	"context"
	"testing"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/assignment"
	"github.com/helixml/codeframe/domain/hierarchy"
	"github.com/helixml/codeframe/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hierarchyFixture struct {
	ctx   context.Context
	db    database.Database
	store HierarchyStore
	genID int64
}

func newHierarchyFixture(t *testing.T) hierarchyFixture {
	t.Helper()
	db := newTestDB(t)
	return hierarchyFixture{
		ctx:   context.Background(),
		db:    db,
		store: NewHierarchyStore(db),
		genID: createGeneration(t, db, 1).ID(),
	}
}

func (f hierarchyFixture) auto(t *testing.T, clusterID int, parent *int64, name string) hierarchy.Node {
	t.Helper()
	n := hierarchy.NewAutoNode(f.genID, clusterID, nil, name, name+" description",
		hierarchy.ConfidenceHigh, hierarchy.FrequencyCommon, []string{name + " example"})
	if parent != nil {
		n = n.WithParent(parent, 0)
	}
	saved, err := f.store.InsertAuto(f.ctx, n)
	require.NoError(t, err)
	return saved
}

func (f hierarchyFixture) tree(t *testing.T) map[int64][]int64 {
	t.Helper()
	flat, err := f.store.Flat(f.ctx, f.genID)
	require.NoError(t, err)
	out := make(map[int64][]int64)
	for _, n := range flat {
		key := int64(0)
		if p := n.ParentID(); p != nil {
			key = *p
		}
		out[key] = append(out[key], n.ID())
	}
	return out
}

func assertDenseOrders(t *testing.T, nodes []hierarchy.Node) {
	t.Helper()
	byParent := make(map[int64][]int)
	for _, n := range nodes {
		key := int64(0)
		if p := n.ParentID(); p != nil {
			key = *p
		}
		byParent[key] = append(byParent[key], n.DisplayOrder())
	}
	for parent, orders := range byParent {
		for i, o := range orders {
			assert.Equal(t, i, o, "parent %d", parent)
		}
	}
}

func TestHierarchyStore_InsertAutoIsIdempotentPerCluster(t *testing.T) {
	f := newHierarchyFixture(t)

	first := f.auto(t, 3, nil, "Price")
	assert.Equal(t, int64(1), first.Version())
	assert.True(t, first.IsAutoGenerated())
	assert.False(t, first.IsEdited())

	rerun := f.auto(t, 3, nil, "Cost")
	assert.Equal(t, first.ID(), rerun.ID())
	assert.Equal(t, "Cost", rerun.Name())
	assert.Equal(t, int64(2), rerun.Version())

	roots, total, err := f.store.Count(f.ctx, f.genID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), roots)
	assert.Equal(t, int64(1), total)
}

func TestHierarchyStore_CountSeparatesRoots(t *testing.T) {
	f := newHierarchyFixture(t)
	price := f.auto(t, 1, nil, "Price")
	_ = f.auto(t, 2, ptrTo(price.ID()), "Too expensive")
	_ = f.auto(t, 3, nil, "Delivery")

	roots, total, err := f.store.Count(f.ctx, f.genID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), roots)
	assert.Equal(t, int64(3), total)

	roots, total, err = f.store.Count(f.ctx, f.genID+1)
	require.NoError(t, err)
	assert.Zero(t, roots)
	assert.Zero(t, total)
}

func TestHierarchyStore_InsertAutoKeepsHumanEdits(t *testing.T) {
	f := newHierarchyFixture(t)
	n := f.auto(t, 1, nil, "Price")

	name := "Value for money"
	_, err := f.store.Update(f.ctx, hierarchy.UpdateAction{
		NodeID: n.ID(), ExpectedVersion: n.Version(), Patch: hierarchy.Patch{Name: &name},
	}, "alice")
	require.NoError(t, err)

	again := f.auto(t, 1, nil, "Price")
	assert.Equal(t, "Value for money", again.Name())
	assert.True(t, again.IsEdited())
}

func TestHierarchyStore_InsertAutoAppendsSiblings(t *testing.T) {
	f := newHierarchyFixture(t)
	a := f.auto(t, 1, nil, "A")
	b := f.auto(t, 2, nil, "B")
	child := f.auto(t, 3, ptrTo(a.ID()), "A1")

	assert.Equal(t, 0, a.DisplayOrder())
	assert.Equal(t, 1, b.DisplayOrder())
	assert.Equal(t, 0, child.DisplayOrder())
	require.NotNil(t, child.ParentID())
	assert.Equal(t, a.ID(), *child.ParentID())

	orphan := f.auto(t, 4, ptrTo(9999), "Orphan")
	assert.Nil(t, orphan.ParentID(), "a missing parent puts the node at root")
	assert.Equal(t, 2, orphan.DisplayOrder())
}

func TestHierarchyStore_UpdateChecksVersion(t *testing.T) {
	f := newHierarchyFixture(t)
	n := f.auto(t, 1, nil, "Price")

	name := "Pricing"
	updated, err := f.store.Update(f.ctx, hierarchy.UpdateAction{
		NodeID: n.ID(), ExpectedVersion: n.Version(), Patch: hierarchy.Patch{Name: &name},
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Pricing", updated.Name())
	assert.Equal(t, n.Version()+1, updated.Version())
	assert.True(t, updated.IsEdited())
	require.Len(t, updated.EditHistory(), 1)
	assert.Equal(t, "alice", updated.EditHistory()[0].Actor)

	stale := "Costs"
	_, err = f.store.Update(f.ctx, hierarchy.UpdateAction{
		NodeID: n.ID(), ExpectedVersion: n.Version(), Patch: hierarchy.Patch{Name: &stale},
	}, "bob")
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	_, err = f.store.Update(f.ctx, hierarchy.UpdateAction{
		NodeID: 424242, ExpectedVersion: 1, Patch: hierarchy.Patch{Name: &stale},
	}, "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHierarchyStore_DeleteReparentsChildren(t *testing.T) {
	f := newHierarchyFixture(t)
	first := f.auto(t, 0, nil, "First")
	parent := f.auto(t, 1, nil, "Parent")
	last := f.auto(t, 2, nil, "Last")
	c1 := f.auto(t, 3, ptrTo(parent.ID()), "Child 1")
	c2 := f.auto(t, 4, ptrTo(parent.ID()), "Child 2")

	result, err := f.store.Delete(f.ctx, hierarchy.DeleteAction{
		NodeID: parent.ID(), ExpectedVersion: parent.Version(), ReparentChildren: true,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{parent.ID()}, result.RemovedIDs)

	assert.Equal(t, map[int64][]int64{
		0: {first.ID(), c1.ID(), c2.ID(), last.ID()},
	}, f.tree(t))

	flat, err := f.store.Flat(f.ctx, f.genID)
	require.NoError(t, err)
	assertDenseOrders(t, flat)

	tombstoned, err := f.store.IsTombstoned(f.ctx, f.genID, 1)
	require.NoError(t, err)
	assert.True(t, tombstoned)

	_, err = f.store.InsertAuto(f.ctx, hierarchy.NewAutoNode(f.genID, 1, nil, "Parent", "d",
		hierarchy.ConfidenceHigh, hierarchy.FrequencyCommon, nil))
	assert.ErrorIs(t, err, hierarchy.ErrTombstoned, "a late label job cannot resurrect the node")
}

func TestHierarchyStore_DeleteCascade(t *testing.T) {
	f := newHierarchyFixture(t)
	parent := f.auto(t, 1, nil, "Parent")
	child := f.auto(t, 2, ptrTo(parent.ID()), "Child")
	grandchild := f.auto(t, 3, ptrTo(child.ID()), "Grandchild")
	other := f.auto(t, 4, nil, "Other")

	assignments := NewAssignmentStore(f.db)
	require.NoError(t, assignments.Upsert(f.ctx, []assignment.Record{
		assignment.NewRecord(f.genID, 100, grandchild.ID(), 0.9),
		assignment.NewRecord(f.genID, 101, other.ID(), 0.8),
	}))

	result, err := f.store.Delete(f.ctx, hierarchy.DeleteAction{
		NodeID: parent.ID(), ExpectedVersion: parent.Version(), ReparentChildren: false,
	}, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{parent.ID(), child.ID(), grandchild.ID()}, result.RemovedIDs)

	assert.Equal(t, map[int64][]int64{0: {other.ID()}}, f.tree(t))

	n, err := assignments.Count(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "assignments of removed nodes are dropped")
}

func TestHierarchyStore_MoveRejectsCycles(t *testing.T) {
	f := newHierarchyFixture(t)
	a := f.auto(t, 1, nil, "A")
	b := f.auto(t, 2, ptrTo(a.ID()), "B")
	c := f.auto(t, 3, ptrTo(b.ID()), "C")

	_, err := f.store.Move(f.ctx, hierarchy.MoveAction{
		NodeID: a.ID(), ExpectedVersion: a.Version(), NewParentID: ptrTo(c.ID()),
	}, "alice")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.store.Move(f.ctx, hierarchy.MoveAction{
		NodeID: a.ID(), ExpectedVersion: a.Version(), NewParentID: ptrTo(9999),
	}, "alice")
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, map[int64][]int64{0: {a.ID()}, a.ID(): {b.ID()}, b.ID(): {c.ID()}}, f.tree(t))
}

func TestHierarchyStore_MoveReordersDensely(t *testing.T) {
	f := newHierarchyFixture(t)
	a := f.auto(t, 1, nil, "A")
	b := f.auto(t, 2, nil, "B")
	c := f.auto(t, 3, nil, "C")
	d := f.auto(t, 4, ptrTo(a.ID()), "D")

	moved, err := f.store.Move(f.ctx, hierarchy.MoveAction{
		NodeID: c.ID(), ExpectedVersion: c.Version(), NewParentID: nil, NewOrder: 0,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, moved.DisplayOrder())
	assert.True(t, moved.IsEdited())
	assert.Equal(t, map[int64][]int64{0: {c.ID(), a.ID(), b.ID()}, a.ID(): {d.ID()}}, f.tree(t))

	_, err = f.store.Move(f.ctx, hierarchy.MoveAction{
		NodeID: b.ID(), ExpectedVersion: b.Version(), NewParentID: ptrTo(a.ID()), NewOrder: 0,
	}, "alice")
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict, "b was renumbered by the previous move")

	fresh, err := f.store.Get(f.ctx, b.ID())
	require.NoError(t, err)
	_, err = f.store.Move(f.ctx, hierarchy.MoveAction{
		NodeID: b.ID(), ExpectedVersion: fresh.Version(), NewParentID: ptrTo(a.ID()), NewOrder: 0,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[int64][]int64{0: {c.ID(), a.ID()}, a.ID(): {b.ID(), d.ID()}}, f.tree(t))

	flat, err := f.store.Flat(f.ctx, f.genID)
	require.NoError(t, err)
	assertDenseOrders(t, flat)
}

func TestHierarchyStore_AddAtPosition(t *testing.T) {
	f := newHierarchyFixture(t)
	a := f.auto(t, 1, nil, "A")
	b := f.auto(t, 2, nil, "B")

	pos := 1
	added, err := f.store.Add(f.ctx, f.genID, hierarchy.AddAction{
		Name: " Other ", Confidence: hierarchy.ConfidenceLow, Frequency: hierarchy.FrequencyRare, Position: &pos,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Other", added.Name())
	assert.Nil(t, added.ClusterID())
	assert.False(t, added.IsAutoGenerated())
	assert.True(t, added.IsEdited())
	assert.Equal(t, map[int64][]int64{0: {a.ID(), added.ID(), b.ID()}}, f.tree(t))

	_, err = f.store.Add(f.ctx, f.genID, hierarchy.AddAction{
		ParentID: ptrTo(9999), Name: "X", Confidence: hierarchy.ConfidenceLow, Frequency: hierarchy.FrequencyRare,
	}, "alice")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestHierarchyStore_Merge(t *testing.T) {
	f := newHierarchyFixture(t)
	target := f.auto(t, 1, nil, "Price")
	source := f.auto(t, 2, nil, "Cost")
	sourceChild := f.auto(t, 3, ptrTo(source.ID()), "Too expensive")
	other := f.auto(t, 4, nil, "Taste")

	assignments := NewAssignmentStore(f.db)
	require.NoError(t, assignments.Upsert(f.ctx, []assignment.Record{
		assignment.NewRecord(f.genID, 100, source.ID(), 0.9),
	}))

	result, err := f.store.Merge(f.ctx, hierarchy.MergeAction{
		TargetID: target.ID(), ExpectedVersion: target.Version(),
		SourceIDs:      []int64{source.ID()},
		SourceVersions: map[int64]int64{source.ID(): source.Version()},
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{source.ID()}, result.RemovedIDs)
	require.NotNil(t, result.Node)
	assert.Equal(t, []string{"Price example", "Cost example"}, result.Node.ExampleTexts())
	assert.True(t, result.Node.IsEdited())

	assert.Equal(t, map[int64][]int64{
		0:           {target.ID(), other.ID()},
		target.ID(): {sourceChild.ID()},
	}, f.tree(t))

	moved, err := assignments.Find(f.ctx, assignment.WithAnswerIDs([]int64{100}))
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, target.ID(), moved[0].NodeID())

	tombstoned, err := f.store.IsTombstoned(f.ctx, f.genID, 2)
	require.NoError(t, err)
	assert.True(t, tombstoned)
}

func TestHierarchyStore_MergeRejectsTargetInsideSource(t *testing.T) {
	f := newHierarchyFixture(t)
	source := f.auto(t, 1, nil, "Parent")
	target := f.auto(t, 2, ptrTo(source.ID()), "Child")

	_, err := f.store.Merge(f.ctx, hierarchy.MergeAction{
		TargetID: target.ID(), ExpectedVersion: target.Version(),
		SourceIDs:      []int64{source.ID()},
		SourceVersions: map[int64]int64{source.ID(): source.Version()},
	}, "alice")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.store.Merge(f.ctx, hierarchy.MergeAction{
		TargetID: source.ID(), ExpectedVersion: source.Version(),
		SourceIDs:      []int64{777},
		SourceVersions: map[int64]int64{777: 1},
	}, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHierarchyStore_MergeChecksSourceVersions(t *testing.T) {
	f := newHierarchyFixture(t)
	target := f.auto(t, 1, nil, "Price")
	fresh := f.auto(t, 2, nil, "Cost")
	source := f.auto(t, 3, nil, "Fees")

	// Another editor renames the source after this one read it.
	name := "Hidden fees"
	renamed, err := f.store.Update(f.ctx, hierarchy.UpdateAction{
		NodeID: source.ID(), ExpectedVersion: source.Version(), Patch: hierarchy.Patch{Name: &name},
	}, "bob")
	require.NoError(t, err)

	_, err = f.store.Merge(f.ctx, hierarchy.MergeAction{
		TargetID: target.ID(), ExpectedVersion: target.Version(),
		SourceIDs:      []int64{fresh.ID(), source.ID()},
		SourceVersions: map[int64]int64{fresh.ID(): fresh.Version(), source.ID(): source.Version()},
	}, "alice")
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	// Nothing was merged.
	assert.Equal(t, map[int64][]int64{
		0: {target.ID(), fresh.ID(), source.ID()},
	}, f.tree(t))
	unchanged, err := f.store.Get(f.ctx, target.ID())
	require.NoError(t, err)
	assert.Equal(t, target.Version(), unchanged.Version())

	result, err := f.store.Merge(f.ctx, hierarchy.MergeAction{
		TargetID: target.ID(), ExpectedVersion: target.Version(),
		SourceIDs:      []int64{fresh.ID(), source.ID()},
		SourceVersions: map[int64]int64{fresh.ID(): fresh.Version(), source.ID(): renamed.Version()},
	}, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{fresh.ID(), source.ID()}, result.RemovedIDs)
}

func TestHierarchyStore_TreeStaysAcyclicAfterEdits(t *testing.T) {
	f := newHierarchyFixture(t)
	a := f.auto(t, 1, nil, "A")
	b := f.auto(t, 2, ptrTo(a.ID()), "B")
	c := f.auto(t, 3, ptrTo(b.ID()), "C")
	_ = f.auto(t, 4, nil, "D")

	fresh := func(id int64) hierarchy.Node {
		n, err := f.store.Get(f.ctx, id)
		require.NoError(t, err)
		return n
	}

	_, err := f.store.Move(f.ctx, hierarchy.MoveAction{NodeID: c.ID(), ExpectedVersion: fresh(c.ID()).Version()}, "x")
	require.NoError(t, err)
	_, err = f.store.Move(f.ctx, hierarchy.MoveAction{NodeID: a.ID(), ExpectedVersion: fresh(a.ID()).Version(), NewParentID: ptrTo(c.ID())}, "x")
	require.NoError(t, err)
	_, err = f.store.Delete(f.ctx, hierarchy.DeleteAction{NodeID: c.ID(), ExpectedVersion: fresh(c.ID()).Version(), ReparentChildren: true}, "x")
	require.NoError(t, err)

	flat, err := f.store.Flat(f.ctx, f.genID)
	require.NoError(t, err)
	for _, n := range flat {
		assert.False(t, hierarchy.WouldCycle(flat, n.ID(), n.ParentID()), "node %d", n.ID())
	}
	assert.Len(t, hierarchy.Flatten(hierarchy.BuildTree(flat)), len(flat))
	assertDenseOrders(t, flat)

	again, err := f.store.Flat(f.ctx, f.genID)
	require.NoError(t, err)
	assert.Equal(t, hierarchy.Flatten(hierarchy.BuildTree(flat)), hierarchy.Flatten(hierarchy.BuildTree(again)))
}
