// Package tree builds and validates the derived index over a risk tree's
// flat node arena: node, parent, and child lookups plus ancestor and subtree
// resolution. An Index is only ever produced fully valid — construction is
// the single point where structural invariants are checked, and a failed
// build yields no index at all.
package tree

import (
	"fmt"

	"github.com/risquanter/riskcast/internal/models"
)

// Index is the validated, immutable view of one tree snapshot. It is rebuilt
// from scratch whenever nodes are added, removed, or reparented.
type Index struct {
	nodes    map[string]*models.RiskNode
	parents  map[string]string   // node id -> parent id (root absent)
	children map[string][]string // node id -> ordered child ids
	rootID   string
}

// BuildIndex validates the node arena and derives the lookup maps.
// Validation accumulates every independent problem before returning, so a
// caller sees all of them in one response.
func BuildIndex(nodes []*models.RiskNode) (*Index, error) {
	v := models.NewValidationErrors()

	idx := &Index{
		nodes:    make(map[string]*models.RiskNode, len(nodes)),
		parents:  make(map[string]string),
		children: make(map[string][]string),
	}

	if len(nodes) == 0 {
		v.Addf("tree", "tree has no nodes")
		return nil, v
	}

	for _, node := range nodes {
		models.ValidateNode(node, v)
		if node.ID == "" {
			continue
		}
		if _, dup := idx.nodes[node.ID]; dup {
			v.Addf("tree", "duplicate node id %q", node.ID)
			continue
		}
		idx.nodes[node.ID] = node
	}

	// Structural checks only make sense over resolvable ids.
	var roots []string
	for id, node := range idx.nodes {
		if node.ParentID == "" {
			roots = append(roots, id)
		} else if _, ok := idx.nodes[node.ParentID]; !ok {
			v.Addf(fmt.Sprintf("node[%s].parent_id", id), "references unknown node %q", node.ParentID)
		}

		for _, childID := range node.ChildIDs {
			child, ok := idx.nodes[childID]
			if !ok {
				v.Addf(fmt.Sprintf("node[%s].child_ids", id), "references unknown node %q", childID)
				continue
			}
			if child.ParentID != id {
				v.Addf(fmt.Sprintf("node[%s].child_ids", id),
					"child %q has parent_id %q, expected %q", childID, child.ParentID, id)
			}
		}
	}

	switch len(roots) {
	case 0:
		v.Addf("tree", "no root node (every node has a parent — cycle or orphaned tree)")
	case 1:
		idx.rootID = roots[0]
	default:
		v.Addf("tree", "expected exactly one root, found %d", len(roots))
	}

	// Every child must be claimed by its parent (bidirectional consistency).
	for id, node := range idx.nodes {
		if node.ParentID == "" {
			continue
		}
		parent := idx.nodes[node.ParentID]
		if parent == nil {
			continue // already reported above
		}
		claimed := false
		for _, childID := range parent.ChildIDs {
			if childID == id {
				claimed = true
				break
			}
		}
		if !claimed {
			v.Addf(fmt.Sprintf("node[%s].parent_id", id),
				"parent %q does not list this node as a child", node.ParentID)
		}
	}

	// Cycle detection: walking parents from any node must terminate at the
	// root within len(nodes) steps.
	if idx.rootID != "" {
		for id := range idx.nodes {
			cur := id
			for steps := 0; ; steps++ {
				node := idx.nodes[cur]
				if node == nil || node.ParentID == "" {
					break
				}
				if steps > len(idx.nodes) {
					v.Addf("tree", "cycle detected on ancestor path from node %q", id)
					break
				}
				cur = node.ParentID
			}
		}
	}

	if v.HasErrors() {
		return nil, v
	}

	for id, node := range idx.nodes {
		if node.ParentID != "" {
			idx.parents[id] = node.ParentID
		}
		if len(node.ChildIDs) > 0 {
			children := make([]string, len(node.ChildIDs))
			copy(children, node.ChildIDs)
			idx.children[id] = children
		}
	}

	return idx, nil
}

// RootID returns the id of the tree's single parentless node.
func (idx *Index) RootID() string {
	return idx.rootID
}

// Node returns the node with the given id, or nil.
func (idx *Index) Node(id string) *models.RiskNode {
	return idx.nodes[id]
}

// Len returns the number of nodes in the tree.
func (idx *Index) Len() int {
	return len(idx.nodes)
}

// ParentID returns the parent of a node and whether one exists.
func (idx *Index) ParentID(id string) (string, bool) {
	parent, ok := idx.parents[id]
	return parent, ok
}

// Children returns the ordered child ids of a node. Empty for leaves.
func (idx *Index) Children(id string) []string {
	return idx.children[id]
}

// AncestorPath returns the chain of ids from the node itself up to the root,
// node first. Returns nil for an unknown id.
func (idx *Index) AncestorPath(id string) []string {
	if _, ok := idx.nodes[id]; !ok {
		return nil
	}
	path := []string{id}
	cur := id
	for {
		parent, ok := idx.parents[cur]
		if !ok {
			return path
		}
		path = append(path, parent)
		cur = parent
	}
}

// Subtree returns the ids of the subtree rooted at id, depth-first in child
// order, the root of the subtree first. depth bounds descent: 0 means the
// node alone, negative means unbounded.
func (idx *Index) Subtree(id string, depth int) []string {
	if _, ok := idx.nodes[id]; !ok {
		return nil
	}
	var out []string
	var walk func(cur string, remaining int)
	walk = func(cur string, remaining int) {
		out = append(out, cur)
		if remaining == 0 {
			return
		}
		for _, child := range idx.children[cur] {
			walk(child, remaining-1)
		}
	}
	walk(id, depth)
	return out
}

// LeafIDs returns every leaf id beneath (and including) the given node.
func (idx *Index) LeafIDs(id string) []string {
	var out []string
	for _, nodeID := range idx.Subtree(id, -1) {
		if idx.nodes[nodeID].IsLeaf() {
			out = append(out, nodeID)
		}
	}
	return out
}
