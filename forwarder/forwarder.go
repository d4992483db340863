// Package forwarder implements the forwarding plane: dedup memory, TTL
// decrement, local delivery, flooding and next-hop unicast. It is modeled
// on core/processing.go's forward/receive pipeline — the parallel fan-out
// with a sync.WaitGroup per outbound send, and per-send failures that are
// logged without interrupting sibling sends, follow the same shape as
// Core.forward's ConvergenceSender loop.
package forwarder

import (
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/routerlab/node/envelope"
)

// DefaultSeenTTL is the retention window of the dedup memory (spec §3,
// §4.2 step 3).
const DefaultSeenTTL = 15 * time.Second

// Sender transmits an envelope to a specific neighbor node id. Implemented
// by the transport adapters (spec §6's send contract).
type Sender interface {
	Send(neighbor string, e envelope.Envelope) error
}

// NextHopper is the read-only view the forwarder needs of the active
// routing algorithm: just next_hop, published atomically by Recompute
// (spec §5 publish-by-swap).
type NextHopper interface {
	NextHop(dest string) (hop string, ok bool)
}

// Forwarder owns the seen-set (dedup memory), decides whether to flood or
// unicast, and delivers messages addressed to this node locally. Per
// spec §5 the seen set is owned exclusively by the forwarder; the
// demultiplexer is its only producer.
type Forwarder struct {
	me       string
	sender   Sender
	routing  NextHopper
	events   chan<- RoutingEvent
	deliver  func(envelope.Envelope)
	seenTTL  time.Duration

	mu   sync.Mutex
	seen map[string]time.Time

	// neighbors is the statically configured neighbor set, used for the
	// flood fan-out and for the anti-echo exclusion.
	neighbors []string
}

// RoutingEvent is what the forwarder publishes to the routing task's
// queue for control envelopes (spec §4.2 step 5). It has the same fields
// as routing.Event; node.Supervisor's routing task consumes RoutingEvent
// values directly, with no conversion to routing.Event.
type RoutingEvent struct {
	Type    envelope.Type
	From    string
	To      string
	Payload any
	Hops    int
}

// New constructs a Forwarder. deliver is called for every envelope
// addressed to me (locally terminating messages); events receives control
// envelopes (hello/info/LSR adjacency messages) for the routing task.
func New(me string, neighbors []string, sender Sender, routing NextHopper, events chan<- RoutingEvent, deliver func(envelope.Envelope)) *Forwarder {
	f := &Forwarder{
		me:        me,
		sender:    sender,
		routing:   routing,
		events:    events,
		deliver:   deliver,
		seenTTL:   DefaultSeenTTL,
		seen:      make(map[string]time.Time),
		neighbors: append([]string(nil), neighbors...),
	}
	return f
}

// Handle runs one envelope through the pipeline of spec §4.2, in order:
// validate, normalize, dedup, TTL, publish control events, local delivery,
// forward.
func (f *Forwarder) Handle(e envelope.Envelope) {
	if e.IsUnknownType() {
		log.WithField("type", e.Type).Debug("forwarder: dropping envelope with unknown type")
		return
	}
	if err := e.Validate(); err != nil {
		log.WithError(err).Debug("forwarder: dropping malformed envelope")
		return
	}

	if e.Origin == "" {
		e.Origin = e.From
	}

	key := dedupKey(e)
	if f.admit(key) {
		log.WithFields(log.Fields{"id": e.ID, "from": e.From}).Debug("forwarder: dropping duplicate envelope")
		return
	}

	if e.TTL <= 0 {
		log.WithFields(log.Fields{"id": e.ID}).Debug("forwarder: dropping envelope with expired ttl")
		return
	}

	if e.Type == envelope.TypeHello || e.Type == envelope.TypeInfo {
		f.publishEvent(e)
	}

	// The LSR adjacency-learning variant (spec §4.2 step 1 / §4.3
	// on_message): a "message" envelope whose payload describes a
	// directly observed edge rather than application data. The
	// forwarder has no delivery model for it, so it is handed to the
	// routing queue as a typed event and the pipeline stops here.
	if e.Type == envelope.TypeMessage && e.Proto == envelope.ProtoLSR {
		if isEdgeObservation(e.Payload) {
			f.publishEvent(e)
			return
		}
	}

	if e.Type == envelope.TypeMessage {
		if e.To == f.me {
			f.deliver(e)
			return
		}
		if e.To == envelope.Broadcast {
			f.deliver(e)
		}
	}

	f.forward(e)
}

// isEdgeObservation recognizes the adjacency-learning payload shape
// {"src": ..., "dst": ..., "cost": ...}.
func isEdgeObservation(payload any) bool {
	m, ok := payload.(map[string]any)
	if !ok {
		return false
	}
	_, hasSrc := m["src"]
	_, hasDst := m["dst"]
	return hasSrc && hasDst
}

func (f *Forwarder) publishEvent(e envelope.Envelope) {
	hops := 0
	if v, ok := e.HeaderValue("hops"); ok {
		if fv, ok := toFloat(v); ok {
			hops = int(fv)
		}
	}

	select {
	case f.events <- RoutingEvent{Type: e.Type, From: e.From, To: e.To, Payload: e.Payload, Hops: hops}:
	default:
		log.Warn("forwarder: routing event queue full, dropping event")
	}
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

// forward decrements TTL into a copy and either floods it to every
// neighbor but the previous hop (anti-echo), or unicasts it via the
// next-hop the routing algorithm currently publishes.
func (f *Forwarder) forward(e envelope.Envelope) {
	// The previous hop for the anti-echo exclusion is via if the peer set
	// it, else from (spec §4.2 step 7); read it off e before copyE.Via is
	// overwritten to f.me below.
	prevHop := e.Via
	if prevHop == "" {
		prevHop = e.From
	}

	copyE := e.DecTTL()
	copyE.From = f.me
	copyE.Via = f.me

	if copyE.Proto == envelope.ProtoFlooding || copyE.To == envelope.Broadcast {
		f.flood(copyE, prevHop)
		return
	}

	hop, ok := f.routing.NextHop(copyE.To)
	if !ok {
		log.WithFields(log.Fields{"id": copyE.ID, "to": copyE.To}).Info("forwarder: unreachable destination, dropping")
		return
	}
	f.sendOne(hop, copyE)
}

// flood sends copyE to every configured neighbor except prevHop (the
// anti-echo rule, spec §4.2 step 7 and §8). All sends proceed in
// parallel; the function returns only once every send has completed or
// failed, matching Core.forward's sync.WaitGroup fan-out.
func (f *Forwarder) flood(copyE envelope.Envelope, prevHop string) {
	var wg sync.WaitGroup
	for _, n := range f.neighbors {
		if n == prevHop {
			continue
		}
		wg.Add(1)
		go func(neighbor string) {
			defer wg.Done()
			f.sendOne(neighbor, copyE)
		}(n)
	}
	wg.Wait()
}

func (f *Forwarder) sendOne(neighbor string, e envelope.Envelope) {
	if err := f.sender.Send(neighbor, e); err != nil {
		log.WithFields(log.Fields{"neighbor": neighbor, "id": e.ID, "error": err}).Warn("forwarder: send failed")
	}
}

// dedupKey computes the de-dup key of spec §4.2 step 3: the envelope id
// when present, or the composite (from, to, type, hops/cost) tuple for
// the simplified adjacency-learning variant that carries no id-bearing
// payload of its own.
func dedupKey(e envelope.Envelope) string {
	if e.ID != "" {
		return e.ID
	}
	hops := 0
	if v, ok := e.HeaderValue("hops"); ok {
		if fv, ok := toFloat(v); ok {
			hops = int(fv)
		}
	}
	return compositeKey(e.From, e.To, string(e.Type), hops)
}

func compositeKey(from, to, typ string, hops int) string {
	return from + "|" + to + "|" + typ + "|" + strconv.Itoa(hops)
}

// admit records key as seen and reports whether it was already present
// (i.e. a duplicate that should be dropped).
func (f *Forwarder) admit(key string) (duplicate bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[key]; ok {
		return true
	}
	f.seen[key] = time.Now()
	return false
}

// Sweep evicts seen-set entries older than SEEN_TTL. Intended to be called
// periodically by the node supervisor's aging task, matching spec §4.2
// step 3's "a background sweep evicts entries older than SEEN_TTL".
func (f *Forwarder) Sweep() {
	cutoff := time.Now().Add(-f.seenTTL)

	f.mu.Lock()
	defer f.mu.Unlock()
	for k, ts := range f.seen {
		if ts.Before(cutoff) {
			delete(f.seen, k)
		}
	}
}

// SetNeighbors replaces the flood fan-out list, used when the topology
// changes (hot reload). Neighbor aging does not change this list.
func (f *Forwarder) SetNeighbors(neighbors []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.neighbors = append([]string(nil), neighbors...)
}
