package chaptergraph

import (
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGraph(t *testing.T) {
	t.Parallel()

	t.Run("isolated chapters map to empty lists", func(t *testing.T) {
		t.Parallel()
		g := NewGraph([]int{3, 1, 2}, nil)

		assert.Equal(t, 3, g.Len())
		assert.Equal(t, []int{1, 2, 3}, g.Nodes())
		assert.Equal(t, map[int][]int{1: {}, 2: {}, 3: {}}, g.Adjacency())
		assert.Equal(t, []int{1, 2, 3}, g.InitialChapters())
	})

	t.Run("edges append to the target's predecessors", func(t *testing.T) {
		t.Parallel()
		g := NewGraph([]int{1, 2, 3, 4}, []Edge{
			{ChapterID: 4, PredecessorID: 3},
			{ChapterID: 4, PredecessorID: 2},
			{ChapterID: 2, PredecessorID: 1},
		})

		assert.Equal(t, []int{2, 3}, g.Predecessors(4))
		assert.Equal(t, []int{1}, g.Predecessors(2))
		assert.Equal(t, []int{}, g.Predecessors(1))
		assert.Equal(t, []int{1, 3}, g.InitialChapters())
	})

	t.Run("unknown chapter has no predecessors", func(t *testing.T) {
		t.Parallel()
		g := NewGraph([]int{1}, nil)

		assert.False(t, g.Has(42))
		assert.Equal(t, []int{}, g.Predecessors(42))
	})

	t.Run("empty course", func(t *testing.T) {
		t.Parallel()
		g := NewGraph(nil, nil)

		assert.Equal(t, 0, g.Len())
		assert.False(t, g.HasCycle())
		order, ok := g.TopologicalOrder()
		assert.True(t, ok)
		assert.Empty(t, order)
	})
}

func TestGraph_WithEdge(t *testing.T) {
	t.Parallel()

	g := NewGraph([]int{1, 2}, nil)
	next := g.WithEdge(Edge{ChapterID: 2, PredecessorID: 1})

	assert.Equal(t, []int{1}, next.Predecessors(2))
	assert.Equal(t, []int{}, g.Predecessors(2), "original snapshot must not change")

	// Returned slices are copies too.
	preds := next.Predecessors(2)
	preds[0] = 99
	assert.Equal(t, []int{1}, next.Predecessors(2))
}

func TestGraph_HasCycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		chapters []int
		edges    []Edge
		want     bool
	}{
		{
			name:     "no edges",
			chapters: []int{1, 2, 3},
			want:     false,
		},
		{
			name:     "chain",
			chapters: []int{1, 2, 3},
			edges:    []Edge{{2, 1}, {3, 2}},
			want:     false,
		},
		{
			name:     "self loop",
			chapters: []int{1},
			edges:    []Edge{{1, 1}},
			want:     true,
		},
		{
			name:     "two cycle",
			chapters: []int{1, 2},
			edges:    []Edge{{2, 1}, {1, 2}},
			want:     true,
		},
		{
			name:     "three cycle",
			chapters: []int{1, 2, 3},
			edges:    []Edge{{2, 1}, {3, 2}, {1, 3}},
			want:     true,
		},
		{
			name:     "diamond",
			chapters: []int{1, 2, 3, 4},
			edges:    []Edge{{2, 1}, {3, 1}, {4, 2}, {4, 3}},
			want:     false,
		},
		{
			name:     "disjoint subgraphs, one cyclic",
			chapters: []int{1, 2, 3, 4, 5},
			edges:    []Edge{{2, 1}, {4, 3}, {5, 4}, {3, 5}},
			want:     true,
		},
		{
			name:     "shared predecessor reached twice is not a cycle",
			chapters: []int{1, 2, 3, 4},
			edges:    []Edge{{4, 1}, {4, 2}, {2, 1}, {3, 2}, {4, 3}},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewGraph(tt.chapters, tt.edges)
			assert.Equal(t, tt.want, g.HasCycle())
		})
	}
}

func TestGraph_HasCycle_LongChain(t *testing.T) {
	t.Parallel()

	const n = 100_000
	chapters := make([]int, n)
	edges := make([]Edge, 0, n-1)
	for i := range n {
		chapters[i] = i + 1
		if i > 0 {
			edges = append(edges, Edge{ChapterID: i + 1, PredecessorID: i})
		}
	}

	g := NewGraph(chapters, edges)
	assert.False(t, g.HasCycle())
	assert.True(t, g.WithEdge(Edge{ChapterID: 1, PredecessorID: n}).HasCycle())
}

func TestGraph_TopologicalOrder(t *testing.T) {
	t.Parallel()

	t.Run("diamond orders by dependencies then id", func(t *testing.T) {
		t.Parallel()
		g := NewGraph([]int{4, 3, 2, 1}, []Edge{{2, 1}, {3, 1}, {4, 3}, {4, 2}})

		order, ok := g.TopologicalOrder()
		require.True(t, ok)
		assert.Equal(t, []int{1, 2, 3, 4}, order)
	})

	t.Run("later ids can come first", func(t *testing.T) {
		t.Parallel()
		g := NewGraph([]int{1, 2, 3}, []Edge{{1, 3}, {2, 1}})

		order, ok := g.TopologicalOrder()
		require.True(t, ok)
		assert.Equal(t, []int{3, 1, 2}, order)
	})

	t.Run("cyclic graph", func(t *testing.T) {
		t.Parallel()
		g := NewGraph([]int{1, 2}, []Edge{{1, 2}, {2, 1}})

		_, ok := g.TopologicalOrder()
		assert.False(t, ok)
	})
}

func TestGraph_MarshalJSON(t *testing.T) {
	t.Parallel()

	g := NewGraph([]int{1, 2, 3}, []Edge{{2, 1}})
	b, err := json.Marshal(g)
	require.NoError(t, err)

	var got struct {
		Predecessors    map[string][]int `json:"predecessors"`
		InitialChapters []int            `json:"initial_chapters"`
		Order           []int            `json:"order"`
	}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Len(t, got.Predecessors, 3)
	assert.Empty(t, got.Predecessors["1"])
	assert.Equal(t, []int{1}, got.Predecessors["2"])
	assert.Empty(t, got.Predecessors["3"])
	assert.Equal(t, []int{1, 3}, got.InitialChapters)
	assert.Equal(t, []int{1, 2, 3}, got.Order)
}
