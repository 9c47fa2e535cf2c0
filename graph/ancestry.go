package graph

import (
	"fmt"
	"slices"

	"github.com/nickyhof/orpheusplus/core"
)

// incoming returns the edges ending at v, parent edge first.
func (g *Graph) incoming(v core.VersionID) []Edge {
	var in []Edge
	for _, e := range g.edges {
		if e.To == v {
			in = append(in, e)
		}
	}
	slices.SortStableFunc(in, func(a, b Edge) int {
		switch {
		case a.Merge == b.Merge:
			return 0
		case a.Merge:
			return 1
		default:
			return -1
		}
	})
	return in
}

// ancestors returns v and everything reachable backwards over parent and
// merge edges.
func (g *Graph) ancestors(v core.VersionID) map[core.VersionID]bool {
	seen := map[core.VersionID]bool{v: true}
	queue := []core.VersionID{v}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range g.incoming(current) {
			if !seen[e.From] {
				seen[e.From] = true
				queue = append(queue, e.From)
			}
		}
	}
	return seen
}

// IsAncestor reports whether a is b or one of b's ancestors.
func (g *Graph) IsAncestor(a, b core.VersionID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ancestors(b)[a]
}

// LowestCommonAncestor returns the newest version both a and b descend
// from. Ids grow along every edge, so no other common ancestor can descend
// from it.
func (g *Graph) LowestCommonAncestor(a, b core.VersionID) (core.VersionID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, v := range []core.VersionID{a, b} {
		if _, ok := g.versions[v]; !ok {
			return 0, core.ErrVersionNotFound.New(v)
		}
	}

	ofA := g.ancestors(a)
	best := core.VersionID(-1)
	for v := range g.ancestors(b) {
		if ofA[v] && v > best {
			best = v
		}
	}
	if best < 0 {
		return 0, core.ErrInvariant.New(fmt.Sprintf("versions %d and %d share no ancestor", a, b))
	}
	return best, nil
}

// Path returns the versions from from down to to, both included. Parent
// pointers are followed first; merge edges are used only when from is not
// a tree ancestor of to.
func (g *Graph) Path(from, to core.VersionID) ([]core.VersionID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	path := []core.VersionID{to}
	for current := to; current != from; {
		v, ok := g.versions[current]
		if !ok {
			return nil, core.ErrVersionNotFound.New(current)
		}
		if v.Parent == nil {
			return g.dagPath(from, to)
		}
		current = *v.Parent
		path = append(path, current)
	}
	slices.Reverse(path)
	return path, nil
}

// dagPath finds the shortest path from from to to over all edges,
// preferring parent edges at each step.
func (g *Graph) dagPath(from, to core.VersionID) ([]core.VersionID, error) {
	next := map[core.VersionID]core.VersionID{}
	seen := map[core.VersionID]bool{to: true}
	queue := []core.VersionID{to}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == from {
			path := []core.VersionID{from}
			for v := from; v != to; {
				v = next[v]
				path = append(path, v)
			}
			return path, nil
		}
		for _, e := range g.incoming(current) {
			if !seen[e.From] {
				seen[e.From] = true
				next[e.From] = current
				queue = append(queue, e.From)
			}
		}
	}
	return nil, core.ErrInvariant.New(fmt.Sprintf("no path from version %d to %d", from, to))
}

// Step returns the edge between two adjacent versions of a path. The
// parent edge is preferred when both exist.
func (g *Graph) Step(from, to core.VersionID) (Edge, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.incoming(to) {
		if e.From == from {
			return e, true
		}
	}
	return Edge{}, false
}
