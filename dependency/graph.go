// Package dependency tracks parent/child relations between job records.
//
// A child is blocked while any of its parents is still present in the
// graph. Removing a parent on success unblocks its children; on failure
// the caller cascades over Descendants.
package dependency

import (
	"github.com/xraph/backlog/id"
)

// Graph is a parent→children adjacency with the reverse index.
// It is not safe for concurrent use; the ledger guards it.
type Graph struct {
	parents  map[id.JobID]map[id.JobID]struct{}
	children map[id.JobID][]id.JobID
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		parents:  make(map[id.JobID]map[id.JobID]struct{}),
		children: make(map[id.JobID][]id.JobID),
	}
}

// Add records that child depends on each of parents. Self-edges and
// duplicates are ignored.
func (g *Graph) Add(child id.JobID, parents ...id.JobID) {
	for _, p := range parents {
		if p == child || p.IsNil() {
			continue
		}
		set, ok := g.parents[child]
		if !ok {
			set = make(map[id.JobID]struct{})
			g.parents[child] = set
		}
		if _, dup := set[p]; dup {
			continue
		}
		set[p] = struct{}{}
		g.children[p] = append(g.children[p], child)
	}
}

// Blocked reports whether child still has an unresolved parent.
func (g *Graph) Blocked(child id.JobID) bool {
	return len(g.parents[child]) > 0
}

// Parents returns the unresolved parents of child.
func (g *Graph) Parents(child id.JobID) []id.JobID {
	set := g.parents[child]
	out := make([]id.JobID, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// Children returns the direct dependents of parent in insertion order.
func (g *Graph) Children(parent id.JobID) []id.JobID {
	return append([]id.JobID(nil), g.children[parent]...)
}

// Remove deletes n and every edge touching it, returning the children
// that became unblocked.
func (g *Graph) Remove(n id.JobID) []id.JobID {
	var unblocked []id.JobID
	for _, c := range g.children[n] {
		set := g.parents[c]
		delete(set, n)
		if len(set) == 0 {
			delete(g.parents, c)
			unblocked = append(unblocked, c)
		}
	}
	delete(g.children, n)

	for p := range g.parents[n] {
		kids := g.children[p]
		for i, c := range kids {
			if c == n {
				g.children[p] = append(kids[:i], kids[i+1:]...)
				break
			}
		}
		if len(g.children[p]) == 0 {
			delete(g.children, p)
		}
	}
	delete(g.parents, n)
	return unblocked
}

// Descendants returns every transitive dependent of root, each exactly
// once, in breadth-first order. root itself is not included.
func (g *Graph) Descendants(root id.JobID) []id.JobID {
	visited := map[id.JobID]struct{}{root: {}}
	var out []id.JobID
	queue := []id.JobID{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, c := range g.children[n] {
			if _, seen := visited[c]; seen {
				continue
			}
			visited[c] = struct{}{}
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}

// Len returns the number of records with unresolved parents.
func (g *Graph) Len() int { return len(g.parents) }
