package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routerlab/node/graph"
)

// TestLSRLineTopologyConverges reproduces spec §8 scenario 1: a line
// A-B-C under LSR, after a full info cycle A routes to C via B and
// vice versa.
func TestLSRLineTopologyConverges(t *testing.T) {
	a := NewLSR()
	a.OnInit("A", map[string]float64{"B": 1})
	b := NewLSR()
	b.OnInit("B", map[string]float64{"A": 1, "C": 1})
	c := NewLSR()
	c.OnInit("C", map[string]float64{"B": 1})

	a.OnHello("B", 1)
	b.OnHello("A", 1)
	b.OnHello("C", 1)
	c.OnHello("B", 1)

	// Flood each node's LSA to the whole network (a real node would do
	// this by broadcasting build_info() through the forwarder's flood).
	for _, lsa := range []any{a.BuildInfo(), b.BuildInfo(), c.BuildInfo()} {
		a.OnInfo("", lsa)
		b.OnInfo("", lsa)
		c.OnInfo("", lsa)
	}

	hop, ok := a.NextHop("C")
	require.True(t, ok)
	assert.Equal(t, "B", hop)

	hop, ok = c.NextHop("A")
	require.True(t, ok)
	assert.Equal(t, "B", hop)
}

func TestLSRFormatBIsMonotonic(t *testing.T) {
	l := NewLSR()
	l.OnInit("A", map[string]float64{})

	newer := lsaFormatB{Self: "X", Neighbors: map[string]float64{"Y": 1}, Seq: 5}
	l.OnInfo("", map[string]any{"self": "X", "neighbors": map[string]any{"Y": 1.0}, "seq": 5.0})

	stale := map[string]any{"self": "X", "neighbors": map[string]any{"Y": 99.0}, "seq": 5.0}
	l.OnInfo("", stale)

	assert.Equal(t, float64(newer.Neighbors["Y"]), l.lsdb["X"]["Y"])
}

func TestLSRWrappedLSPUnwraps(t *testing.T) {
	l := NewLSR()
	l.OnInit("A", map[string]float64{})

	wrapped := map[string]any{"lsp": map[string]any{"self": "X", "neighbors": map[string]any{"Y": 2.0}, "seq": 1.0}}
	l.OnInfo("", wrapped)

	assert.Equal(t, 2.0, l.lsdb["X"]["Y"])
}

// TestDVTwoPath reproduces spec §8 scenario 2.
func TestDVTwoPath(t *testing.T) {
	a := NewDV()
	a.OnInit("A", map[string]float64{"B": 1, "D": 1})

	a.OnInfo("B", map[string]any{"vector": map[string]any{"B": 0.0, "C": 3.0}})
	a.OnInfo("D", map[string]any{"vector": map[string]any{"D": 0.0, "C": 1.0}})

	hop, ok := a.NextHop("C")
	require.True(t, ok)
	assert.Equal(t, "D", hop)
	assert.Equal(t, 2.0, a.dv["C"].cost)
}

// TestDVRejectsNegativeCost reproduces spec §8 scenario 3.
func TestDVRejectsNegativeCost(t *testing.T) {
	a := NewDV()
	a.OnInit("A", map[string]float64{"B": 1})

	a.OnInfo("B", map[string]any{"vector": map[string]any{"B": 0.0, "C": -5.0}})

	_, ok := a.NextHop("C")
	assert.False(t, ok)
}

func TestDVNextHopUnreachableWhenNoRoute(t *testing.T) {
	a := NewDV()
	a.OnInit("A", map[string]float64{"B": 1})

	_, ok := a.NextHop("Z")
	assert.False(t, ok)
}

func TestDijkstraStaticUnreachableIsolatedNode(t *testing.T) {
	g := graph.New(true)
	g.AddEdge("A", "B", 1)
	g.AddNode("X")

	d := NewDijkstra(g)
	d.OnInit("A", nil)

	_, ok := d.NextHop("X")
	assert.False(t, ok)
}

func TestDijkstraPurgeRecomputes(t *testing.T) {
	g := graph.New(true)
	g.AddEdge("A", "B", 1)
	g.AddEdge("B", "C", 1)

	d := NewDijkstra(g)
	d.OnInit("A", nil)

	hop, ok := d.NextHop("C")
	require.True(t, ok)
	assert.Equal(t, "B", hop)

	d.PurgeNode("B")

	_, ok = d.NextHop("C")
	assert.False(t, ok)
}

func TestLSRPurgeNodeRemovesFromLSDB(t *testing.T) {
	a := NewLSR()
	a.OnInit("A", map[string]float64{"B": 1})
	a.OnHello("B", 1)
	a.OnInfo("", map[string]any{"self": "B", "neighbors": map[string]any{"A": 1.0, "C": 1.0}, "seq": 1.0})

	a.PurgeNode("B")

	_, ok := a.NextHop("C")
	assert.False(t, ok)
	_, present := a.lsdb["B"]
	assert.False(t, present)
}
