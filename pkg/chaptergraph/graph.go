package chaptergraph

import (
	"maps"
	"slices"

	"github.com/segmentio/encoding/json"
)

// Edge is a directed dependency inside a course: PredecessorID must precede
// ChapterID.
type Edge struct {
	ChapterID     int `json:"chapter_id"`
	PredecessorID int `json:"predecessor_id"`
}

// IsSelfLoop reports whether the edge makes a chapter depend on itself.
func (e Edge) IsSelfLoop() bool {
	return e.ChapterID == e.PredecessorID
}

// Graph is an in-memory snapshot of a course's chapter graph, keyed by chapter
// ID and pointing at each chapter's predecessors. Every Graph owns its maps, so
// a snapshot can be changed freely without affecting other callers.
type Graph struct {
	predecessors map[int][]int
}

// NewGraph builds a graph with one node per chapter ID and the given edges.
// Chapters without edges map to an empty predecessor list.
func NewGraph(chapterIDs []int, edges []Edge) *Graph {
	g := &Graph{predecessors: make(map[int][]int, len(chapterIDs))}
	for _, id := range chapterIDs {
		g.predecessors[id] = []int{}
	}
	for _, e := range edges {
		g.addEdge(e)
	}
	return g
}

func (g *Graph) addEdge(e Edge) {
	// Endpoints missing from the node list still take part in traversal.
	if _, ok := g.predecessors[e.PredecessorID]; !ok {
		g.predecessors[e.PredecessorID] = []int{}
	}
	g.predecessors[e.ChapterID] = append(g.predecessors[e.ChapterID], e.PredecessorID)
}

// WithEdge returns a copy of the graph with the edge added. The receiver is
// left untouched.
func (g *Graph) WithEdge(e Edge) *Graph {
	clone := &Graph{predecessors: make(map[int][]int, len(g.predecessors)+1)}
	for id, preds := range g.predecessors {
		clone.predecessors[id] = slices.Clone(preds)
	}
	clone.addEdge(e)
	return clone
}

// Len returns the number of chapters in the graph.
func (g *Graph) Len() int {
	return len(g.predecessors)
}

// Has reports whether the chapter is a node of the graph.
func (g *Graph) Has(chapterID int) bool {
	_, ok := g.predecessors[chapterID]
	return ok
}

// Nodes returns the chapter IDs of the graph in ascending order.
func (g *Graph) Nodes() []int {
	return slices.Sorted(maps.Keys(g.predecessors))
}

// Predecessors returns the direct predecessors of a chapter in ascending
// order. Unknown chapters have none.
func (g *Graph) Predecessors(chapterID int) []int {
	preds := slices.Clone(g.predecessors[chapterID])
	if preds == nil {
		return []int{}
	}
	slices.Sort(preds)
	return preds
}

// Adjacency returns a copy of the chapter -> predecessors mapping.
func (g *Graph) Adjacency() map[int][]int {
	adj := make(map[int][]int, len(g.predecessors))
	for id := range g.predecessors {
		adj[id] = g.Predecessors(id)
	}
	return adj
}

// InitialChapters returns the chapters without predecessors, in ascending
// order. A course may have several.
func (g *Graph) InitialChapters() []int {
	initial := []int{}
	for _, id := range g.Nodes() {
		if len(g.predecessors[id]) == 0 {
			initial = append(initial, id)
		}
	}
	return initial
}

// HasCycle reports whether any chapter can reach itself by following
// predecessor edges.
func (g *Graph) HasCycle() bool {
	visited := make(map[int]bool, len(g.predecessors))
	onStack := make(map[int]bool, len(g.predecessors))

	for _, id := range g.Nodes() {
		if visited[id] {
			continue
		}
		if g.reachesStack(id, visited, onStack) {
			return true
		}
	}
	return false
}

type dfsFrame struct {
	chapterID int
	next      int
}

// reachesStack runs an iterative depth-first search from start. It returns
// true as soon as it meets a chapter that is still on the active path.
func (g *Graph) reachesStack(start int, visited, onStack map[int]bool) bool {
	visited[start] = true
	onStack[start] = true
	stack := []dfsFrame{{chapterID: start}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		preds := g.predecessors[top.chapterID]

		if top.next == len(preds) {
			onStack[top.chapterID] = false
			stack = stack[:len(stack)-1]
			continue
		}

		pred := preds[top.next]
		top.next++

		if onStack[pred] {
			return true
		}
		if visited[pred] {
			continue
		}
		visited[pred] = true
		onStack[pred] = true
		stack = append(stack, dfsFrame{chapterID: pred})
	}

	return false
}

// TopologicalOrder returns the chapters ordered so that every chapter comes
// after all of its predecessors. Ties are broken by ascending ID. ok is false
// when the graph has a cycle.
func (g *Graph) TopologicalOrder() (order []int, ok bool) {
	remaining := make(map[int]int, len(g.predecessors))
	successors := make(map[int][]int, len(g.predecessors))
	for id, preds := range g.predecessors {
		remaining[id] += len(preds)
		for _, pred := range preds {
			successors[pred] = append(successors[pred], id)
		}
	}

	ready := g.InitialChapters()
	order = make([]int, 0, len(g.predecessors))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, succ := range successors[id] {
			remaining[succ]--
			if remaining[succ] == 0 {
				ready = append(ready, succ)
			}
		}
		slices.Sort(ready)
	}

	return order, len(order) == len(g.predecessors)
}

type graphJSON struct {
	Predecessors    map[int][]int `json:"predecessors"`
	InitialChapters []int         `json:"initial_chapters"`
	Order           []int         `json:"order"`
}

// MarshalJSON encodes the adjacency, the initial chapters and a topological
// order of the graph.
func (g *Graph) MarshalJSON() ([]byte, error) {
	order, ok := g.TopologicalOrder()
	if !ok {
		order = nil
	}
	return json.Marshal(graphJSON{
		Predecessors:    g.Adjacency(),
		InitialChapters: g.InitialChapters(),
		Order:           order,
	})
}
