// Package routerconfig loads the two external JSON files the spec defines
// in §6 — the topology file and the names file — and watches them for
// changes with fsnotify, the way cmd/dtn-tool/exchange.go in the teacher
// lineage watches a directory for new files to pick up.
package routerconfig

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/routerlab/node/graph"
)

// Topology mirrors topo-*.json: {"type":"topo","config":{node: neighbors}}
// where neighbors is either a bare list (implicit cost 1) or a mapping.
type Topology struct {
	Type   string                     `json:"type"`
	Config map[string]json.RawMessage `json:"config"`
}

// ParseNeighbors parses one node's neighbors value into neighbor costs,
// accepting either wire shape neighbors can take.
func ParseNeighbors(raw json.RawMessage) (map[string]float64, error) {
	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		costs := make(map[string]float64, len(asList))
		for _, n := range asList {
			costs[n] = 1
		}
		return costs, nil
	}

	var asMap map[string]float64
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap, nil
	}

	return nil, fmt.Errorf("neighbors: neither a list nor a cost mapping")
}

// LoadTopology parses a topo-*.json document into per-node neighbor costs.
func LoadTopology(data []byte) (map[string]map[string]float64, error) {
	var t Topology
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("topology: malformed json: %w", err)
	}

	var errs error
	out := make(map[string]map[string]float64, len(t.Config))
	for node, raw := range t.Config {
		costs, err := ParseNeighbors(raw)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("topology: node %q: %w", node, err))
			continue
		}
		out[node] = costs
	}

	if errs != nil {
		return nil, errs
	}
	return out, nil
}

// BuildGraph turns a parsed topology into a graph.Graph, used by the static
// Dijkstra algorithm (spec §4.5) to load its one-time graph. Costs from
// the config are taken as directed edges; symmetry is the Graph's
// Undirected flag, not an assumption baked into the file format.
func BuildGraph(topology map[string]map[string]float64, undirected bool) *graph.Graph {
	g := graph.New(undirected)
	for node, neighbors := range topology {
		g.AddNode(node)
		for nbr, cost := range neighbors {
			g.AddEdge(node, nbr, cost)
		}
	}
	return g
}

// Names mirrors names-*.json: {"type":"names","config":{node: address}}.
// For a TCP transport address is host:port; for a pub/sub transport it is
// a channel identifier.
type Names struct {
	Type   string            `json:"type"`
	Config map[string]string `json:"config"`
}

// LoadNames parses a names-*.json document into a node -> address table.
func LoadNames(data []byte) (map[string]string, error) {
	var n Names
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("names: malformed json: %w", err)
	}
	return n.Config, nil
}
