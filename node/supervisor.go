// Package node wires the forwarder, a routing algorithm and a transport
// together into the cooperating tasks spec §4.6 calls the node
// supervisor: an inbound demultiplexer, a single-consumer routing task, a
// hello emitter, an info emitter and an aging sweep. The task shapes and
// the shared stopSyn shutdown signal are modeled on core.Core's
// goroutines in the teacher lineage.
package node

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/routerlab/node/envelope"
	"github.com/routerlab/node/forwarder"
	"github.com/routerlab/node/introspect"
	"github.com/routerlab/node/routing"
	"github.com/routerlab/node/transport"
)

// Defaults mirror spec §6's environment variable defaults.
const (
	DefaultHelloInterval = 3 * time.Second
	DefaultInfoInterval  = 5 * time.Second
	DefaultNeighborDead  = 5 * time.Second
	DefaultNodeDead      = 15 * time.Second
)

// Config configures a Supervisor. NeighborCosts is the statically
// configured neighbor set this node advertises hellos to and ages against.
type Config struct {
	Me            string
	Proto         envelope.Proto
	NeighborCosts map[string]float64

	HelloInterval time.Duration
	InfoInterval  time.Duration
	NeighborDead  time.Duration
	NodeDead      time.Duration

	// DisableInfo skips the info emitter entirely (static Dijkstra has no
	// info to exchange, spec §4.6).
	DisableInfo bool
}

func (c Config) withDefaults() Config {
	if c.HelloInterval == 0 {
		c.HelloInterval = DefaultHelloInterval
	}
	if c.InfoInterval == 0 {
		c.InfoInterval = DefaultInfoInterval
	}
	if c.NeighborDead == 0 {
		c.NeighborDead = DefaultNeighborDead
	}
	if c.NodeDead == 0 {
		c.NodeDead = DefaultNodeDead
	}
	return c
}

// Supervisor is the running node: demultiplexer + routing task + timers +
// aging, built around one Algorithm, one Forwarder and one Transport.
type Supervisor struct {
	cfg       Config
	algorithm routing.Algorithm
	fwd       *forwarder.Forwarder
	tr        transport.Transport

	events chan forwarder.RoutingEvent

	mu               sync.Mutex
	neighborCosts    map[string]float64
	neighborLastSeen map[string]time.Time
	activeNeighbors  map[string]bool
	nodeLastSeen     map[string]time.Time

	stopSyn chan struct{}

	// introspectState is optional; set via SetIntrospectState to feed the
	// HTTP /neighbors and /routes endpoints.
	introspectState *introspect.State
}

// SetIntrospectState attaches an introspect.State the aging task refreshes
// on every tick. Pass nil (the default) to skip introspection entirely.
func (s *Supervisor) SetIntrospectState(state *introspect.State) {
	s.introspectState = state
}

// New builds a Supervisor. The caller is responsible for constructing the
// Algorithm, Forwarder (wired to tr and this node's deliver callback) and
// Transport beforehand; New calls the algorithm's OnInit and starts the
// cooperating tasks.
func New(cfg Config, algorithm routing.Algorithm, fwd *forwarder.Forwarder, tr transport.Transport, events chan forwarder.RoutingEvent) *Supervisor {
	cfg = cfg.withDefaults()

	neighborCosts := make(map[string]float64, len(cfg.NeighborCosts))
	for n, c := range cfg.NeighborCosts {
		neighborCosts[n] = c
	}

	s := &Supervisor{
		cfg:              cfg,
		algorithm:        algorithm,
		fwd:              fwd,
		tr:               tr,
		events:           events,
		neighborCosts:    neighborCosts,
		neighborLastSeen: make(map[string]time.Time),
		activeNeighbors:  make(map[string]bool),
		nodeLastSeen:     make(map[string]time.Time),
		stopSyn:          make(chan struct{}),
	}

	s.algorithm.OnInit(cfg.Me, cfg.NeighborCosts)

	go s.demux()
	go s.routingTask()
	go s.helloLoop()
	if !cfg.DisableInfo {
		go s.infoLoop()
	}
	go s.agingLoop()

	return s
}

// helloLoop, infoLoop and agingLoop are the supervisor's three periodic
// tasks (spec §4.6), each a dedicated ticker-driven goroutine stopped by
// closing stopSyn — the same shape demux and routingTask already use,
// rather than routing them through a separate generic scheduler: the
// supervisor only ever needs these three fixed timers, so a named-job
// table buys no flexibility it actually uses.
func (s *Supervisor) helloLoop() {
	ticker := time.NewTicker(s.cfg.HelloInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSyn:
			return
		case <-ticker.C:
			s.emitHello()
		}
	}
}

func (s *Supervisor) infoLoop() {
	ticker := time.NewTicker(s.cfg.InfoInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSyn:
			return
		case <-ticker.C:
			s.emitInfo()
		}
	}
}

func (s *Supervisor) agingLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSyn:
			return
		case <-ticker.C:
			s.age()
		}
	}
}

// demux is the inbound demultiplexer: every envelope the transport hands
// us is run through the forwarder pipeline (spec §4.2).
func (s *Supervisor) demux() {
	for {
		select {
		case <-s.stopSyn:
			return
		case e, ok := <-s.tr.Inbound():
			if !ok {
				return
			}
			s.fwd.Handle(e)
		}
	}
}

// routingTask is the single consumer of the routing event queue (spec §5):
// it is the only goroutine that ever mutates algorithm state, so every
// OnHello/OnInfo/OnMessageEdge/Recompute call is free of data races by
// construction.
func (s *Supervisor) routingTask() {
	for {
		select {
		case <-s.stopSyn:
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		}
	}
}

func (s *Supervisor) handleEvent(ev forwarder.RoutingEvent) {
	switch ev.Type {
	case envelope.TypeHello:
		// A hello's last_seen is recorded even from a peer this node has
		// no configured cost for (spec §4.6 / §9); only a configured
		// neighbor's hello actually reaches the algorithm and triggers a
		// recompute.
		if configured := s.markNeighborActive(ev.From); configured {
			metric, _ := toFloat(ev.Payload)
			s.algorithm.OnHello(ev.From, metric)
			s.algorithm.Recompute()
		}

	case envelope.TypeInfo:
		s.algorithm.OnInfo(ev.From, ev.Payload)
		s.markNodeSeen(ev.From)
		s.algorithm.Recompute()

	case envelope.TypeMessage:
		src, dst, cost, ok := edgeFields(ev.Payload)
		if !ok {
			return
		}
		s.algorithm.OnMessageEdge(src, dst, cost)
		s.markNodeSeen(src)
		s.markNodeSeen(dst)
		s.algorithm.Recompute()
	}
}

// edgeFields extracts the LSR adjacency-learning payload shape
// {"src": ..., "dst": ..., "cost": ...}.
func edgeFields(payload any) (src, dst string, cost float64, ok bool) {
	m, isMap := payload.(map[string]any)
	if !isMap {
		return "", "", 0, false
	}
	src, srcOK := m["src"].(string)
	dst, dstOK := m["dst"].(string)
	if !srcOK || !dstOK {
		return "", "", 0, false
	}
	cost, _ = toFloat(m["cost"])
	return src, dst, cost, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case map[string]any:
		if mv, ok := n["metric"]; ok {
			return toFloat(mv)
		}
	}
	return 0, false
}

// emitHello sends a hello to each active neighbor once any are known, or
// to every configured neighbor while bootstrapping (spec §4.6).
func (s *Supervisor) emitHello() {
	costs := s.neighborCostsSnapshot()

	targets := s.activeNeighborList()
	if len(targets) == 0 {
		for n := range costs {
			targets = append(targets, n)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, n := range targets {
		metric := costs[n]
		e := envelope.New(s.cfg.Proto, envelope.TypeHello, s.cfg.Me, n, map[string]any{"metric": metric})
		if err := s.tr.Send(ctx, n, e); err != nil {
			log.WithFields(log.Fields{"neighbor": n, "error": err}).Debug("node: hello send failed")
		}
	}
}

// emitInfo calls the algorithm's BuildInfo and sends it to every active
// neighbor, wrapping LSR payloads in {"lsp": ...} per spec §4.3/§4.6.
func (s *Supervisor) emitInfo() {
	payload := s.algorithm.BuildInfo()
	if payload == nil {
		return
	}
	if s.cfg.Proto == envelope.ProtoLSR {
		payload = map[string]any{"lsp": payload}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, n := range s.activeNeighborList() {
		e := envelope.New(s.cfg.Proto, envelope.TypeInfo, s.cfg.Me, n, payload)
		if err := s.tr.Send(ctx, n, e); err != nil {
			log.WithFields(log.Fields{"neighbor": n, "error": err}).Debug("node: info send failed")
		}
	}
}

// age runs once a second (spec §4.6): expires neighbors silent for longer
// than NeighborDead, and remote nodes (tracked via info arrivals) silent
// for longer than NodeDead. Each expiration purges the algorithm's state
// and recomputes.
func (s *Supervisor) age() {
	s.fwd.Sweep()

	now := time.Now()
	changed := false

	s.mu.Lock()
	for n := range s.neighborCosts {
		last, seen := s.neighborLastSeen[n]
		if !seen {
			continue
		}
		if s.activeNeighbors[n] && now.Sub(last) > s.cfg.NeighborDead {
			delete(s.activeNeighbors, n)
			changed = true
			log.WithField("neighbor", n).Info("node: neighbor aged out")
			s.algorithm.PurgeNode(n)
		}
	}
	for remote, last := range s.nodeLastSeen {
		if _, isNeighbor := s.neighborCosts[remote]; isNeighbor {
			continue
		}
		if now.Sub(last) > s.cfg.NodeDead {
			delete(s.nodeLastSeen, remote)
			changed = true
			log.WithField("node", remote).Info("node: remote node aged out")
			s.algorithm.PurgeNode(remote)
		}
	}
	s.mu.Unlock()

	if changed {
		s.algorithm.Recompute()
	}

	s.refreshIntrospection()
}

// refreshIntrospection pushes a fresh neighbor/route snapshot to the
// attached introspect.State, if any. Only algorithms implementing
// routing.RouteTableProvider expose a full table; others just get an
// empty /routes response.
func (s *Supervisor) refreshIntrospection() {
	if s.introspectState == nil {
		return
	}

	s.mu.Lock()
	views := make([]introspect.NeighborView, 0, len(s.neighborCosts))
	for n, cost := range s.neighborCosts {
		views = append(views, introspect.NeighborView{
			Node:     n,
			Cost:     cost,
			Active:   s.activeNeighbors[n],
			LastSeen: s.neighborLastSeen[n],
		})
	}
	s.mu.Unlock()
	s.introspectState.SetNeighbors(views)

	if provider, ok := s.algorithm.(routing.RouteTableProvider); ok {
		s.introspectState.SetRoutes(provider.Routes())
	}
}

// markNeighborActive records that a hello arrived from n. last_seen is
// updated for any sender the codec accepted, configured or not (spec
// §4.6); only a configured neighbor is marked active, since activeNeighbors
// gates what the hello/info emitters address and what the algorithm is
// told about.
func (s *Supervisor) markNeighborActive(n string) (configured bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.neighborLastSeen[n] = time.Now()
	if _, configured = s.neighborCosts[n]; configured {
		s.activeNeighbors[n] = true
	}
	return configured
}

// neighborCostsSnapshot returns a copy of the current neighbor cost table,
// safe to range over without holding s.mu.
func (s *Supervisor) neighborCostsSnapshot() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.neighborCosts))
	for n, c := range s.neighborCosts {
		out[n] = c
	}
	return out
}

// UpdateNeighbors replaces the configured neighbor set and costs, used
// when the topology file changes on disk (routerconfig.Watcher). Each
// neighbor's new cost is pushed through the routing event queue as a
// synthetic hello, the same path a real one takes, so the routing task
// remains the sole writer of algorithm state (spec §5) even for a
// reload-driven update.
func (s *Supervisor) UpdateNeighbors(costs map[string]float64) {
	s.mu.Lock()
	s.neighborCosts = make(map[string]float64, len(costs))
	for n, c := range costs {
		s.neighborCosts[n] = c
	}
	s.mu.Unlock()

	for n, cost := range costs {
		select {
		case s.events <- forwarder.RoutingEvent{Type: envelope.TypeHello, From: n, Payload: map[string]any{"metric": cost}}:
		default:
			log.WithField("neighbor", n).Warn("node: routing event queue full, dropping reloaded neighbor cost")
		}
	}
}

func (s *Supervisor) markNodeSeen(n string) {
	if n == "" || n == s.cfg.Me {
		return
	}
	s.mu.Lock()
	s.nodeLastSeen[n] = time.Now()
	s.mu.Unlock()
}

func (s *Supervisor) activeNeighborList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.activeNeighbors))
	for n := range s.activeNeighbors {
		out = append(out, n)
	}
	return out
}

// Close shuts every cooperating task down. It does not close the
// underlying Transport; the caller owns that lifecycle.
func (s *Supervisor) Close() {
	close(s.stopSyn)
}
