package hierarchy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id int64, parent *int64, order int) Node {
	return ReconstructNode(id, 1, parent, "n", "", ConfidenceHigh, FrequencyCommon, nil,
		nil, nil, order, true, false, nil, 1, time.Time{}, time.Time{})
}

func ptr(v int64) *int64 { return &v }

func ids(tree []TreeNode) []int64 {
	var out []int64
	for _, n := range Flatten(tree) {
		out = append(out, n.ID())
	}
	return out
}

func TestBuildTree_OrdersSiblingsByDisplayOrderThenID(t *testing.T) {
	nodes := []Node{
		node(3, nil, 1),
		node(1, nil, 0),
		node(2, nil, 1),
		node(10, ptr(1), 1),
		node(11, ptr(1), 0),
	}

	tree := BuildTree(nodes)

	require.Len(t, tree, 3)
	assert.Equal(t, []int64{1, 11, 10, 2, 3}, ids(tree))
}

func TestBuildTree_IsOrderStable(t *testing.T) {
	nodes := []Node{node(5, nil, 0), node(6, ptr(5), 0), node(7, ptr(5), 1), node(8, nil, 1)}
	reversed := []Node{nodes[3], nodes[2], nodes[1], nodes[0]}

	assert.Equal(t, ids(BuildTree(nodes)), ids(BuildTree(nodes)))
	assert.Equal(t, ids(BuildTree(nodes)), ids(BuildTree(reversed)))
}

func TestBuildTree_OrphansBecomeRoots(t *testing.T) {
	tree := BuildTree([]Node{node(1, nil, 0), node(2, ptr(99), 0)})
	require.Len(t, tree, 2)
	assert.Equal(t, []int64{1, 2}, ids(tree))
}

func TestBuildTree_EmitsCycleMembersOnce(t *testing.T) {
	nodes := []Node{node(1, ptr(2), 0), node(2, ptr(1), 0), node(3, nil, 0)}
	tree := BuildTree(nodes)
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids(tree))
	assert.Len(t, ids(tree), 3)
}

func TestLeaves(t *testing.T) {
	nodes := []Node{node(1, nil, 0), node(2, ptr(1), 0), node(3, ptr(1), 1), node(4, nil, 1)}
	var got []int64
	for _, n := range Leaves(nodes) {
		got = append(got, n.ID())
	}
	assert.Equal(t, []int64{2, 3, 4}, got)
}

func TestWouldCycle(t *testing.T) {
	nodes := []Node{node(1, nil, 0), node(2, ptr(1), 0), node(3, ptr(2), 0), node(4, nil, 1)}

	assert.True(t, WouldCycle(nodes, 1, ptr(3)), "moving a node under its grandchild")
	assert.True(t, WouldCycle(nodes, 2, ptr(2)), "moving a node under itself")
	assert.False(t, WouldCycle(nodes, 3, ptr(4)))
	assert.False(t, WouldCycle(nodes, 3, nil))
}

func TestDescendants(t *testing.T) {
	nodes := []Node{node(1, nil, 0), node(2, ptr(1), 0), node(3, ptr(2), 0), node(4, nil, 1)}
	assert.Equal(t, map[int64]bool{2: true, 3: true}, Descendants(nodes, 1))
	assert.Empty(t, Descendants(nodes, 4))
}

func TestInsert_RenumbersDensely(t *testing.T) {
	siblings := []Node{node(1, nil, 0), node(2, nil, 5), node(3, nil, 9)}
	out := Insert(siblings, node(4, nil, 0), 1)

	require.Len(t, out, 4)
	for i, n := range out {
		assert.Equal(t, i, n.DisplayOrder())
	}
	assert.Equal(t, int64(4), out[1].ID())

	appended := Insert(siblings, node(5, nil, 0), 42)
	assert.Equal(t, int64(5), appended[3].ID())
}

func TestSiblings(t *testing.T) {
	nodes := []Node{node(1, nil, 1), node(2, nil, 0), node(3, ptr(1), 0)}
	got := Siblings(nodes, nil, 2)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID())
	assert.Len(t, Siblings(nodes, ptr(1), 0), 1)
}
