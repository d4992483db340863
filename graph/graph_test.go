package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortestPathsLineTopology(t *testing.T) {
	g := New(true)
	g.AddEdge("A", "B", 1)
	g.AddEdge("B", "C", 1)

	paths := g.ShortestPaths("A")

	assert.Equal(t, "B", paths["C"].NextHop)
	assert.Equal(t, 2.0, paths["C"].Dist)
	assert.True(t, paths["C"].Reachable)
}

func TestShortestPathsUnreachableIsolatedNode(t *testing.T) {
	g := New(true)
	g.AddEdge("A", "B", 1)
	g.AddNode("X")

	paths := g.ShortestPaths("A")

	assert.False(t, paths["X"].Reachable)
}

func TestRemoveNodeDropsIncidentEdges(t *testing.T) {
	g := New(true)
	g.AddEdge("A", "B", 1)
	g.AddEdge("B", "C", 1)

	g.RemoveNode("B")

	for _, e := range g.Neighbors("A") {
		assert.NotEqual(t, "B", e.Neighbor)
	}
	for _, e := range g.Neighbors("C") {
		assert.NotEqual(t, "B", e.Neighbor)
	}
}

func TestShortestPathsPicksCheaperTwoHopOverDirect(t *testing.T) {
	g := New(true)
	g.AddEdge("A", "B", 10)
	g.AddEdge("A", "D", 1)
	g.AddEdge("D", "B", 1)

	paths := g.ShortestPaths("A")

	assert.Equal(t, "D", paths["B"].NextHop)
	assert.Equal(t, 2.0, paths["B"].Dist)
}
