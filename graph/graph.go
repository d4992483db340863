// Package graph is the shared support structure used by both the Dijkstra
// and Link-State routing algorithms: an adjacency list keyed by node id,
// with a Dijkstra solve backed by github.com/RyanCarrier/dijkstra the way
// core/routing_dtlsr.go uses it for DTLSR's routing table computation.
package graph

import (
	"sort"

	"github.com/RyanCarrier/dijkstra"
)

// Edge is one adjacency entry: a neighbor and the cost of reaching it.
type Edge struct {
	Neighbor string
	Cost     float64
}

// Graph is a local, non-shared adjacency list. Undirected is a per-instance
// property: when true, AddEdge inserts both directions.
type Graph struct {
	Undirected bool
	adj        map[string][]Edge
}

// New creates an empty Graph.
func New(undirected bool) *Graph {
	return &Graph{Undirected: undirected, adj: make(map[string][]Edge)}
}

// AddNode ensures node is present, even with no edges (needed so isolated
// nodes still show up as unreachable rather than simply absent).
func (g *Graph) AddNode(node string) {
	if _, ok := g.adj[node]; !ok {
		g.adj[node] = nil
	}
}

// AddEdge adds or updates the cost from -> to. If the Graph is undirected,
// the reverse edge is added/updated symmetrically.
func (g *Graph) AddEdge(from, to string, cost float64) {
	g.AddNode(from)
	g.AddNode(to)
	g.adj[from] = upsert(g.adj[from], to, cost)
	if g.Undirected {
		g.adj[to] = upsert(g.adj[to], from, cost)
	}
}

func upsert(edges []Edge, to string, cost float64) []Edge {
	for i, e := range edges {
		if e.Neighbor == to {
			edges[i].Cost = cost
			return edges
		}
	}
	return append(edges, Edge{Neighbor: to, Cost: cost})
}

// Neighbors returns the outgoing edges of node, or nil if unknown.
func (g *Graph) Neighbors(node string) []Edge {
	return g.adj[node]
}

// Nodes returns every node known to the Graph (with or without edges), in
// lexicographic order for deterministic iteration.
func (g *Graph) Nodes() []string {
	nodes := make([]string, 0, len(g.adj))
	for n := range g.adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// RemoveNode drops node and any edge pointing at it, used by LSR's
// purge_node on expiration.
func (g *Graph) RemoveNode(node string) {
	delete(g.adj, node)
	for n, edges := range g.adj {
		filtered := edges[:0]
		for _, e := range edges {
			if e.Neighbor != node {
				filtered = append(filtered, e)
			}
		}
		g.adj[n] = filtered
	}
}

// Path is the result of a shortest-path solve from a fixed source.
type Path struct {
	Dist     float64
	NextHop  string // first hop after source, "" if dest == source or unreachable
	Reachable bool
}

// ShortestPaths runs Dijkstra from src over the whole Graph and returns the
// distance and first-hop for every node. Ties in total cost are broken by
// lexicographic order of the predecessor node id, matching spec §4.5's
// determinism requirement — RyanCarrier/dijkstra breaks ties by insertion
// order, so edges are added to the underlying graph in sorted order to make
// that insertion order deterministic and lexicographic.
func (g *Graph) ShortestPaths(src string) map[string]Path {
	nodes := g.Nodes()
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}

	dg := dijkstra.NewGraph()
	for i := range nodes {
		dg.AddVertex(i)
	}
	for _, n := range nodes {
		edges := append([]Edge(nil), g.adj[n]...)
		sort.Slice(edges, func(i, j int) bool { return edges[i].Neighbor < edges[j].Neighbor })
		for _, e := range edges {
			_ = dg.AddArc(index[n], index[e.Neighbor], costToInt(e.Cost))
		}
	}

	results := make(map[string]Path, len(nodes))
	srcIdx, known := index[src]
	if !known {
		return results
	}

	for _, n := range nodes {
		if n == src {
			results[n] = Path{Dist: 0, Reachable: true}
			continue
		}

		best, err := dg.Shortest(srcIdx, index[n])
		if err != nil || len(best.Path) < 2 {
			results[n] = Path{Reachable: false}
			continue
		}

		results[n] = Path{
			Dist:      intToCost(best.Distance),
			NextHop:   nodes[best.Path[1]],
			Reachable: true,
		}
	}

	return results
}

// costScale converts floating costs to the integer weights
// RyanCarrier/dijkstra requires, preserving fractional costs to three
// decimal places which is ample precision for link metrics in this lab.
const costScale = 1000

func costToInt(c float64) int64 {
	return int64(c * costScale)
}

func intToCost(i int64) float64 {
	return float64(i) / costScale
}
