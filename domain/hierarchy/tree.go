package hierarchy

import "sort"

// TreeNode is a node with its ordered children.
type TreeNode struct {
	Node     Node
	Children []TreeNode
}

// BuildTree derives the ordered tree from a flat node list. It is pure:
// siblings are ordered by display order then id, nodes whose parent is
// absent from the list become roots, and a node is emitted at most once even
// if the input contains a cycle.
func BuildTree(nodes []Node) []TreeNode {
	byID := make(map[int64]Node, len(nodes))
	for _, n := range nodes {
		byID[n.id] = n
	}

	children := make(map[int64][]Node, len(nodes))
	var roots []Node
	for _, n := range nodes {
		if n.parentID == nil {
			roots = append(roots, n)
			continue
		}
		if _, ok := byID[*n.parentID]; !ok || *n.parentID == n.id {
			roots = append(roots, n)
			continue
		}
		children[*n.parentID] = append(children[*n.parentID], n)
	}
	SortSiblings(roots)
	for id := range children {
		SortSiblings(children[id])
	}

	visited := make(map[int64]bool, len(nodes))
	var build func(n Node) TreeNode
	build = func(n Node) TreeNode {
		visited[n.id] = true
		tn := TreeNode{Node: n}
		for _, c := range children[n.id] {
			if visited[c.id] {
				continue
			}
			tn.Children = append(tn.Children, build(c))
		}
		return tn
	}

	tree := make([]TreeNode, 0, len(roots))
	for _, r := range roots {
		if visited[r.id] {
			continue
		}
		tree = append(tree, build(r))
	}

	// Nodes only reachable through a cycle: surface them as roots rather than drop them.
	rest := make([]Node, 0)
	for _, n := range nodes {
		if !visited[n.id] {
			rest = append(rest, n)
		}
	}
	SortSiblings(rest)
	for _, n := range rest {
		if visited[n.id] {
			continue
		}
		tree = append(tree, build(n))
	}
	return tree
}

// SortSiblings orders nodes by display order, then id.
func SortSiblings(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].displayOrder != nodes[j].displayOrder {
			return nodes[i].displayOrder < nodes[j].displayOrder
		}
		return nodes[i].id < nodes[j].id
	})
}

// Flatten walks a tree depth-first in display order.
func Flatten(tree []TreeNode) []Node {
	var out []Node
	var walk func([]TreeNode)
	walk = func(level []TreeNode) {
		for _, tn := range level {
			out = append(out, tn.Node)
			walk(tn.Children)
		}
	}
	walk(tree)
	return out
}

// Leaves returns the nodes that have no children, in tree order.
func Leaves(nodes []Node) []Node {
	hasChild := make(map[int64]bool, len(nodes))
	for _, n := range nodes {
		if n.parentID != nil {
			hasChild[*n.parentID] = true
		}
	}
	var out []Node
	for _, n := range Flatten(BuildTree(nodes)) {
		if !hasChild[n.id] {
			out = append(out, n)
		}
	}
	return out
}

// Siblings returns the nodes sharing parentID, ordered, excluding excludeID.
func Siblings(nodes []Node, parentID *int64, excludeID int64) []Node {
	var out []Node
	for _, n := range nodes {
		if n.id == excludeID || !sameParent(n.parentID, parentID) {
			continue
		}
		out = append(out, n)
	}
	SortSiblings(out)
	return out
}

// Descendants returns the ids of every node below id.
func Descendants(nodes []Node, id int64) map[int64]bool {
	children := make(map[int64][]int64, len(nodes))
	for _, n := range nodes {
		if n.parentID != nil {
			children[*n.parentID] = append(children[*n.parentID], n.id)
		}
	}
	out := make(map[int64]bool)
	stack := append([]int64(nil), children[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out[cur] || cur == id {
			continue
		}
		out[cur] = true
		stack = append(stack, children[cur]...)
	}
	return out
}

// WouldCycle reports whether making newParentID the parent of nodeID would
// create a cycle, by walking the ancestor chain of newParentID.
func WouldCycle(nodes []Node, nodeID int64, newParentID *int64) bool {
	if newParentID == nil {
		return false
	}
	parentOf := make(map[int64]*int64, len(nodes))
	for _, n := range nodes {
		parentOf[n.id] = n.parentID
	}
	seen := make(map[int64]bool)
	cur := newParentID
	for cur != nil {
		if *cur == nodeID {
			return true
		}
		if seen[*cur] {
			return true
		}
		seen[*cur] = true
		cur = parentOf[*cur]
	}
	return false
}

// Insert places node among siblings at position (clamped) and returns the
// sibling list with dense display orders 0..n-1.
func Insert(siblings []Node, node Node, position int) []Node {
	if position < 0 || position > len(siblings) {
		position = len(siblings)
	}
	out := make([]Node, 0, len(siblings)+1)
	out = append(out, siblings[:position]...)
	out = append(out, node)
	out = append(out, siblings[position:]...)
	return Renumber(out)
}

// Renumber assigns dense display orders in slice order.
func Renumber(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.WithDisplayOrder(i)
	}
	return out
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
