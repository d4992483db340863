package routing

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/routerlab/node/graph"
)

// Dijkstra is the static routing algorithm: a Graph loaded once from a
// topology file and solved at startup, matching spec §4.5. No hello/info
// exchange changes it; it is solved again only when PurgeNode removes a
// node from the graph. It reuses the same
// graph.ShortestPaths solve DTLSR's computeRoutingTable performs, just
// without DTLSR's continuous peer-data churn.
type Dijkstra struct {
	mu sync.RWMutex

	me      string
	g       *graph.Graph
	nextHop map[string]string
}

// NewDijkstra wraps a Graph already loaded from the topology file (spec
// §6). If the topology file was absent, g may be empty or nil: OnInit
// adds the local node (creating the Graph if nil), so the graph then
// contains only me, per §4.5 "construct a graph containing only me".
func NewDijkstra(g *graph.Graph) *Dijkstra {
	return &Dijkstra{g: g, nextHop: make(map[string]string)}
}

func (sp *Dijkstra) OnInit(me string, _ map[string]float64) {
	sp.mu.Lock()
	sp.me = me
	if sp.g == nil {
		sp.g = graph.New(true)
	}
	sp.g.AddNode(me)
	sp.mu.Unlock()

	sp.Recompute()
}

func (sp *Dijkstra) OnHello(string, float64)     {} // static: no-op
func (sp *Dijkstra) OnInfo(string, any)          {} // static: no-op
func (sp *Dijkstra) OnMessageEdge(string, string, float64) {} // static: no-op

func (sp *Dijkstra) Recompute() {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	paths := sp.g.ShortestPaths(sp.me)
	nextHop := make(map[string]string, len(paths))
	for dest, p := range paths {
		if p.Reachable && dest != sp.me {
			nextHop[dest] = p.NextHop
		}
	}

	log.WithFields(log.Fields{
		"node":   sp.me,
		"routes": len(nextHop),
	}).Debug("dijkstra: recomputed static routing table")

	sp.nextHop = nextHop
}

func (sp *Dijkstra) NextHop(dest string) (string, bool) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	hop, ok := sp.nextHop[dest]
	return hop, ok
}

func (sp *Dijkstra) BuildInfo() any { return nil } // static: no state to exchange

// Routes returns a snapshot of the full next-hop table, satisfying
// routing.RouteTableProvider for the introspection endpoint.
func (sp *Dijkstra) Routes() map[string]string {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	out := make(map[string]string, len(sp.nextHop))
	for k, v := range sp.nextHop {
		out[k] = v
	}
	return out
}

func (sp *Dijkstra) PurgeNode(node string) {
	sp.mu.Lock()
	sp.g.RemoveNode(node)
	sp.mu.Unlock()

	sp.Recompute()
}
