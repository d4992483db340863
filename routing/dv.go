package routing

import (
	"math"
	"sync"

	log "github.com/sirupsen/logrus"
)

// dvEntry is one row of a distance vector: the best known cost to a
// destination and the neighbor to hand packets to.
type dvEntry struct {
	cost    float64
	nextHop string
	known   bool
}

// DV is the Distance-Vector routing algorithm: each node relaxes its own
// vector against every neighbor's most recently advertised vector
// (Bellman-Ford), the way Prophet (core/routing_prophet.go) keeps its own
// predictabilities alongside peerPredictabilities received from others,
// protected by the same dataMutex RWMutex pattern.
type DV struct {
	mu sync.RWMutex

	live liveness

	// dv is this node's own vector: dest -> {cost, next_hop}.
	dv map[string]dvEntry

	// recv[neighbor][dest] = cost is the most recently received vector
	// from each neighbor, per spec §3.
	recv map[string]map[string]float64
}

// NewDV constructs a DV algorithm instance. Call OnInit before use.
func NewDV() *DV {
	return &DV{
		dv:   make(map[string]dvEntry),
		recv: make(map[string]map[string]float64),
	}
}

func (d *DV) OnInit(me string, neighborCosts map[string]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.live = newLiveness(me, neighborCosts)
	d.dv[me] = dvEntry{cost: 0, known: true}
}

func (d *DV) OnHello(neighbor string, metric float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, known := d.live.neighborCosts[neighbor]; !known {
		d.live.neighborCosts[neighbor] = metric
	}
	d.live.markActive(neighbor)
}

// dvVectorPayload is the wire shape BuildInfo exports and OnInfo consumes:
// {"vector": {dest: cost}}.
type dvVectorPayload struct {
	Vector map[string]float64 `json:"vector"`
}

func (d *DV) OnInfo(fromNeighbor string, payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	vecRaw, ok := m["vector"].(map[string]any)
	if !ok {
		return
	}

	filtered := make(map[string]float64, len(vecRaw))
	for dest, v := range vecRaw {
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		if f < 0 {
			// negative costs are discarded, spec §4.4 and §8 scenario 3
			log.WithFields(log.Fields{
				"neighbor": fromNeighbor,
				"dest":     dest,
				"cost":     f,
			}).Warn("dv: discarding negative-cost advertisement")
			continue
		}
		filtered[dest] = f
	}

	d.mu.Lock()
	d.recv[fromNeighbor] = filtered
	d.mu.Unlock()

	d.Recompute()
}

func (d *DV) OnMessageEdge(string, string, float64) {} // DV has no adjacency-learning variant

// Recompute runs one round of Bellman-Ford relaxation over every candidate
// destination — me, every destination already in dv, and every destination
// mentioned by any neighbor's most recent vector — per spec §4.4.
func (d *DV) Recompute() {
	d.mu.Lock()
	defer d.mu.Unlock()

	candidates := map[string]struct{}{d.live.me: {}}
	for dest := range d.dv {
		candidates[dest] = struct{}{}
	}
	for _, vec := range d.recv {
		for dest := range vec {
			candidates[dest] = struct{}{}
		}
	}

	next := make(map[string]dvEntry, len(candidates))
	next[d.live.me] = dvEntry{cost: 0, known: true}

	for dest := range candidates {
		if dest == d.live.me {
			continue
		}

		best := dvEntry{cost: math.Inf(1)}
		for neighbor, linkCost := range d.live.neighborCosts {
			recvCost, ok := d.recv[neighbor][dest]
			if !ok {
				continue
			}
			candidateCost := linkCost + recvCost
			if candidateCost < best.cost {
				best = dvEntry{cost: candidateCost, nextHop: neighbor, known: true}
			}
		}

		if !best.known {
			// keep previous value on ties / no candidate found, rather
			// than erasing a route that simply wasn't re-advertised yet.
			if prev, ok := d.dv[dest]; ok {
				next[dest] = prev
			}
			continue
		}

		if prev, ok := d.dv[dest]; ok && prev.cost == best.cost {
			next[dest] = prev // keep previous value on ties
		} else {
			next[dest] = best
		}
	}

	d.dv = next
}

func (d *DV) NextHop(dest string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.dv[dest]
	if !ok || !e.known || math.IsInf(e.cost, 1) || e.nextHop == "" {
		return "", false
	}
	return e.nextHop, true
}

// Routes returns a snapshot of the full next-hop table, satisfying
// routing.RouteTableProvider for the introspection endpoint.
func (d *DV) Routes() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.dv))
	for dest, e := range d.dv {
		if e.known && !math.IsInf(e.cost, 1) && e.nextHop != "" {
			out[dest] = e.nextHop
		}
	}
	return out
}

func (d *DV) BuildInfo() any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	vector := make(map[string]float64, len(d.dv))
	for dest, e := range d.dv {
		if e.known && !math.IsInf(e.cost, 1) {
			vector[dest] = e.cost
		}
	}
	return dvVectorPayload{Vector: vector}
}

func (d *DV) PurgeNode(node string) {
	d.mu.Lock()
	delete(d.dv, node)
	delete(d.recv, node)
	delete(d.live.neighborCosts, node)
	delete(d.live.activeNeighbors, node)
	d.mu.Unlock()

	d.Recompute()
}
