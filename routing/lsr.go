package routing

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/routerlab/node/graph"
)

// LSR is the Link-State routing algorithm: every node floods its own
// incident links (an LSA/LSP), every node assembles the flooded LSAs into
// a shared view of the graph (the LSDB), and next-hops are the first step
// of a Dijkstra solve over that graph from this node. Modeled on DTLSR
// (core/routing_dtlsr.go) — computeRoutingTable's dijkstra.NewGraph/
// AddArc/Shortest dance becomes a call into the graph package here, and
// peerData/receivedData become lsdb/seenSeq.
type LSR struct {
	mu sync.RWMutex

	live liveness

	// lsdb[origin][neighbor] = cost, as defined in spec §3. Starts empty:
	// "born empty, learn to route" — lsdb[me] is populated only once each
	// configured neighbor is confirmed by an incoming hello.
	lsdb map[string]map[string]float64

	// adjObserved holds edges learned from the adjacency-learning
	// on_message variant (§4.3), kept separate from lsdb so purge_node
	// can clear both independently.
	adjObserved map[string]map[string]float64

	// seenSeq is the per-origin monotonic sequence used to dedup Format B
	// LSAs (spec §4.3, §8 "LSA monotonicity").
	seenSeq map[string]int
	mySeq   int

	nextHop map[string]string
	dist    map[string]float64
}

// NewLSR constructs an LSR algorithm instance. Call OnInit before use.
func NewLSR() *LSR {
	return &LSR{
		lsdb:        make(map[string]map[string]float64),
		adjObserved: make(map[string]map[string]float64),
		seenSeq:     make(map[string]int),
		nextHop:     make(map[string]string),
		dist:        make(map[string]float64),
	}
}

func (l *LSR) OnInit(me string, neighborCosts map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.live = newLiveness(me, neighborCosts)
	// lsdb[me] intentionally starts empty; it is populated hello-by-hello.
}

func (l *LSR) OnHello(neighbor string, metric float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.live.isConfigured(neighbor) {
		return
	}
	l.live.markActive(neighbor)

	if l.lsdb[l.live.me] == nil {
		l.lsdb[l.live.me] = make(map[string]float64)
	}
	if existing, ok := l.lsdb[l.live.me][neighbor]; !ok || existing != metric {
		l.lsdb[l.live.me][neighbor] = metric
		l.mySeq++
		l.recomputeLocked()
	}
}

// lsaFormatA is the batch wire format: a full replacement of the lsdb.
type lsaFormatA struct {
	Lsdb map[string]map[string]float64 `json:"lsdb"`
}

// lsaFormatB is the singleton-with-sequence wire format, optionally
// wrapped as {"lsp": ...}.
type lsaFormatB struct {
	Self      string             `json:"self"`
	Neighbors map[string]float64 `json:"neighbors"`
	Seq       int                `json:"seq"`
}

func (l *LSR) OnInfo(_ string, payload any) {
	m, ok := unwrapLSP(payload)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if fb, ok := decodeFormatB(m); ok {
		if fb.Self == "" {
			return
		}
		if fb.Seq <= l.seenSeq[fb.Self] {
			return // LSA monotonicity: no-op on stale or replayed sequence
		}
		l.seenSeq[fb.Self] = fb.Seq
		l.lsdb[fb.Self] = fb.Neighbors
		l.recomputeLocked()
		return
	}

	if fa, ok := decodeFormatA(m); ok {
		changed := false
		for origin, neighbors := range fa.Lsdb {
			if !equalCostMaps(l.lsdb[origin], neighbors) {
				l.lsdb[origin] = neighbors
				changed = true
			}
		}
		if changed {
			l.recomputeLocked()
		}
		return
	}

	log.WithField("payload", payload).Debug("lsr: info payload matched neither LSA format")
}

func (l *LSR) OnMessageEdge(src, dst string, cost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := setSymmetric(l.adjObserved, src, dst, cost)
	if changed {
		l.recomputeLocked()
	}
}

func setSymmetric(m map[string]map[string]float64, a, b string, cost float64) (changed bool) {
	if m[a] == nil {
		m[a] = make(map[string]float64)
	}
	if m[b] == nil {
		m[b] = make(map[string]float64)
	}
	if existing, ok := m[a][b]; !ok || existing != cost {
		m[a][b] = cost
		changed = true
	}
	if existing, ok := m[b][a]; !ok || existing != cost {
		m[b][a] = cost
		changed = true
	}
	return changed
}

func (l *LSR) Recompute() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recomputeLocked()
}

// recomputeLocked rebuilds the undirected graph from confirmed neighbors,
// observed adjacencies, and every remote origin's lsdb entries, then runs
// Dijkstra from me. Must be called with l.mu held.
func (l *LSR) recomputeLocked() {
	g := graph.New(true)
	g.AddNode(l.live.me)

	for origin, neighbors := range l.lsdb {
		for nbr, cost := range neighbors {
			g.AddEdge(origin, nbr, cost)
		}
	}
	for origin, neighbors := range l.adjObserved {
		for nbr, cost := range neighbors {
			g.AddEdge(origin, nbr, cost)
		}
	}

	paths := g.ShortestPaths(l.live.me)

	nextHop := make(map[string]string, len(paths))
	dist := make(map[string]float64, len(paths))
	for dest, p := range paths {
		if !p.Reachable || dest == l.live.me {
			continue
		}
		nextHop[dest] = p.NextHop
		dist[dest] = p.Dist
	}

	// publish-by-swap: readers of NextHop never see a half-built table.
	l.nextHop = nextHop
	l.dist = dist
}

func (l *LSR) NextHop(dest string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	hop, ok := l.nextHop[dest]
	return hop, ok
}

// Routes returns a snapshot of the full next-hop table, satisfying
// routing.RouteTableProvider for the introspection endpoint.
func (l *LSR) Routes() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.nextHop))
	for k, v := range l.nextHop {
		out[k] = v
	}
	return out
}

func (l *LSR) BuildInfo() any {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.mySeq++
	neighbors := make(map[string]float64, len(l.lsdb[l.live.me]))
	for k, v := range l.lsdb[l.live.me] {
		neighbors[k] = v
	}

	return lsaFormatB{Self: l.live.me, Neighbors: neighbors, Seq: l.mySeq}
}

func (l *LSR) PurgeNode(node string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.lsdb, node)
	for origin := range l.lsdb {
		delete(l.lsdb[origin], node)
	}
	delete(l.adjObserved, node)
	for origin := range l.adjObserved {
		delete(l.adjObserved[origin], node)
	}
	delete(l.seenSeq, node)
	delete(l.live.activeNeighbors, node)

	l.recomputeLocked()
}

func equalCostMaps(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// unwrapLSP strips an optional {"lsp": ...} wrapper and returns the payload
// as a generic map for format dispatch, matching spec §4.3's "a payload
// may be wrapped as {lsp: ...}; unwrap before matching either format".
// An lsaFormatB value as returned by BuildInfo is converted to the same map
// shape it has after a JSON round trip.
func unwrapLSP(payload any) (map[string]any, bool) {
	if fb, ok := payload.(lsaFormatB); ok {
		neighbors := make(map[string]any, len(fb.Neighbors))
		for k, v := range fb.Neighbors {
			neighbors[k] = v
		}
		return map[string]any{"self": fb.Self, "neighbors": neighbors, "seq": fb.Seq}, true
	}
	m, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}
	if inner, ok := m["lsp"]; ok {
		if innerMap, ok := inner.(map[string]any); ok {
			return innerMap, true
		}
	}
	return m, true
}

func decodeFormatB(m map[string]any) (lsaFormatB, bool) {
	self, hasSelf := m["self"].(string)
	neighborsRaw, hasNeighbors := m["neighbors"].(map[string]any)
	if !hasSelf || !hasNeighbors {
		return lsaFormatB{}, false
	}

	neighbors := make(map[string]float64, len(neighborsRaw))
	for k, v := range neighborsRaw {
		if f, ok := toFloat(v); ok {
			neighbors[k] = f
		}
	}

	seq, _ := toFloat(m["seq"])

	return lsaFormatB{Self: self, Neighbors: neighbors, Seq: int(seq)}, true
}

func decodeFormatA(m map[string]any) (lsaFormatA, bool) {
	raw, ok := m["lsdb"].(map[string]any)
	if !ok {
		return lsaFormatA{}, false
	}

	out := make(map[string]map[string]float64, len(raw))
	for origin, v := range raw {
		neighborsRaw, ok := v.(map[string]any)
		if !ok {
			continue
		}
		neighbors := make(map[string]float64, len(neighborsRaw))
		for k, nv := range neighborsRaw {
			if f, ok := toFloat(nv); ok {
				neighbors[k] = f
			}
		}
		out[origin] = neighbors
	}

	return lsaFormatA{Lsdb: out}, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
