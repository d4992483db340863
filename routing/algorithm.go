// Package routing implements the three routing disciplines the spec calls
// for — Link-State (lsr.go), Distance-Vector (dv.go), and a precomputed
// Dijkstra over a static topology (dijkstra.go) — behind one capability
// interface, the way core/routing.go's RoutingAlgorithm interface lets
// core.Core dispatch to whichever of DTLSR/Epidemic/Prophet/Spray is
// configured without knowing which one it is.
package routing

import "time"

// Event describes a control event for the routing task. It has the same
// fields as forwarder.RoutingEvent, which is the type the forwarder
// actually publishes to the routing task's event queue.
type Event struct {
	Type    EventType
	From    string
	To      string
	Payload any
	Hops    int // the envelope's "hops" header; an observed edge's cost travels in Payload
}

// EventType distinguishes the control events the routing task reacts to.
type EventType string

const (
	EventHello        EventType = "hello"
	EventInfo         EventType = "info"
	EventMessageEdge  EventType = "message" // adjacency-learning LSR variant
)

// Algorithm is the capability set every routing discipline exposes. A node
// supervisor is written against this interface alone and never needs to
// know which concrete algorithm is plugged in, mirroring
// core.RoutingAlgorithm in the teacher lineage.
type Algorithm interface {
	// OnInit seeds the algorithm with this node's identity and its
	// statically configured neighbor costs. No hellos have been
	// exchanged yet.
	OnInit(me string, neighborCosts map[string]float64)

	// OnHello is called when the routing task dequeues an Event from a
	// hello envelope: neighbor confirmed alive, with the advertised
	// metric.
	OnHello(neighbor string, metric float64)

	// OnInfo is called for the payload of an info envelope from a
	// neighbor. Its shape is algorithm-specific (LSA for LSR, vector for
	// DV); Dijkstra ignores it.
	OnInfo(from string, payload any)

	// OnMessageEdge is the LSR adjacency-learning hook: src and dst were
	// observed to be directly connected with the given cost. Algorithms
	// that don't support this variant (DV, Dijkstra) no-op.
	OnMessageEdge(src, dst string, cost float64)

	// Recompute rebuilds the next-hop table from current state. Must
	// publish the new table atomically (publish-by-swap) so concurrent
	// readers of NextHop never observe a half-built table.
	Recompute()

	// NextHop returns the neighbor a packet for dest should be handed to,
	// or ok=false if unreachable.
	NextHop(dest string) (hop string, ok bool)

	// BuildInfo produces this node's own info payload to broadcast on the
	// next info-emitter tick.
	BuildInfo() any

	// PurgeNode removes a node that has aged out (spec §4.6 aging task)
	// from all algorithm-owned state and recomputes.
	PurgeNode(node string)
}

// RouteTableProvider is an optional capability an Algorithm may implement
// to expose its full next-hop table for introspection (the HTTP /routes
// endpoint), as opposed to NextHop's single-destination query surface.
type RouteTableProvider interface {
	Routes() map[string]string
}

// liveness is the shared bookkeeping the LSR, DV and Flooding algorithms
// embed: configured neighbor costs, which of them are currently active,
// and when each was last heard from. Spec §3 calls these out as shared
// invariants across algorithms, so they live in one embeddable struct
// instead of being duplicated in lsr.go/dv.go/flooding.go. The static
// Dijkstra algorithm does not use it.
type liveness struct {
	me              string
	neighborCosts   map[string]float64
	activeNeighbors map[string]bool
	lastSeen        map[string]time.Time
}

func newLiveness(me string, neighborCosts map[string]float64) liveness {
	costs := make(map[string]float64, len(neighborCosts))
	for k, v := range neighborCosts {
		costs[k] = v
	}
	return liveness{
		me:              me,
		neighborCosts:   costs,
		activeNeighbors: make(map[string]bool),
		lastSeen:        make(map[string]time.Time),
	}
}

func (l *liveness) markActive(neighbor string) (isNew bool) {
	if _, configured := l.neighborCosts[neighbor]; !configured {
		return false
	}
	isNew = !l.activeNeighbors[neighbor]
	l.activeNeighbors[neighbor] = true
	l.lastSeen[neighbor] = time.Now()
	return isNew
}

func (l *liveness) isConfigured(neighbor string) bool {
	_, ok := l.neighborCosts[neighbor]
	return ok
}
