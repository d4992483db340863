package routerconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTopologyListImpliesCostOne(t *testing.T) {
	raw := []byte(`{"type":"topo","config":{"A":["B","C"]}}`)

	topo, err := LoadTopology(raw)
	require.NoError(t, err)

	assert.Equal(t, 1.0, topo["A"]["B"])
	assert.Equal(t, 1.0, topo["A"]["C"])
}

func TestLoadTopologyMapKeepsCosts(t *testing.T) {
	raw := []byte(`{"type":"topo","config":{"A":{"B":5,"C":2}}}`)

	topo, err := LoadTopology(raw)
	require.NoError(t, err)

	assert.Equal(t, 5.0, topo["A"]["B"])
	assert.Equal(t, 2.0, topo["A"]["C"])
}

func TestLoadNames(t *testing.T) {
	raw := []byte(`{"type":"names","config":{"A":"127.0.0.1:9000"}}`)

	names, err := LoadNames(raw)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", names["A"])
}

func TestBuildGraphIsUndirectedWhenRequested(t *testing.T) {
	topo, err := LoadTopology([]byte(`{"type":"topo","config":{"A":{"B":1}}}`))
	require.NoError(t, err)

	g := BuildGraph(topo, true)
	neighbors := g.Neighbors("B")
	require.Len(t, neighbors, 1)
	assert.Equal(t, "A", neighbors[0].Neighbor)
}
