package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/routerlab/node/envelope"
	"github.com/routerlab/node/forwarder"
)

// fakeAlgorithm is a minimal routing.Algorithm recording every call the
// supervisor makes to it, so tests can assert on hook sequencing without
// depending on a specific discipline's convergence behavior.
type fakeAlgorithm struct {
	mu         sync.Mutex
	helloCalls []string
	purged     []string
	recomputes int
	info       any
}

func (f *fakeAlgorithm) OnInit(string, map[string]float64) {}

func (f *fakeAlgorithm) OnHello(neighbor string, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.helloCalls = append(f.helloCalls, neighbor)
}

func (f *fakeAlgorithm) OnInfo(string, any)                 {}
func (f *fakeAlgorithm) OnMessageEdge(string, string, float64) {}

func (f *fakeAlgorithm) Recompute() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recomputes++
}

func (f *fakeAlgorithm) NextHop(string) (string, bool) { return "", false }

func (f *fakeAlgorithm) BuildInfo() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info
}

func (f *fakeAlgorithm) PurgeNode(node string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, node)
}

func (f *fakeAlgorithm) purgedNodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.purged...)
}

// fakeTransport is an in-memory transport.Transport double: Send records
// what was sent rather than touching any real substrate.
type fakeTransport struct {
	mu   sync.Mutex
	sent []envelope.Envelope

	inbound chan envelope.Envelope
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan envelope.Envelope, 16)}
}

func (f *fakeTransport) MyID() string { return "test" }

func (f *fakeTransport) Send(_ context.Context, _ string, e envelope.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)
	return nil
}

func (f *fakeTransport) Inbound() <-chan envelope.Envelope { return f.inbound }

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestSupervisor(t *testing.T, cfg Config, algo *fakeAlgorithm) (*Supervisor, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	events := make(chan forwarder.RoutingEvent, 16)
	fwd := forwarder.New(cfg.Me, nil, noopSender{}, algo, events, func(envelope.Envelope) {})
	sup := New(cfg, algo, fwd, tr, events)
	t.Cleanup(sup.Close)
	return sup, tr
}

type noopSender struct{}

func (noopSender) Send(string, envelope.Envelope) error { return nil }

func TestHelloEmitterSendsToConfiguredNeighborsWhileBootstrapping(t *testing.T) {
	algo := &fakeAlgorithm{}
	cfg := Config{
		Me:            "A",
		Proto:         envelope.ProtoFlooding,
		NeighborCosts: map[string]float64{"B": 1, "C": 1},
		HelloInterval: time.Second,
		InfoInterval:  time.Hour,
		NeighborDead:  time.Hour,
		NodeDead:      time.Hour,
	}
	_, tr := newTestSupervisor(t, cfg, algo)

	time.Sleep(1250 * time.Millisecond)

	if tr.sentCount() < 2 {
		t.Fatalf("expected at least 2 hellos (one per neighbor), got %d", tr.sentCount())
	}
}

func TestRoutingEventDrivesHelloAndRecompute(t *testing.T) {
	algo := &fakeAlgorithm{}
	cfg := Config{
		Me:            "A",
		Proto:         envelope.ProtoFlooding,
		NeighborCosts: map[string]float64{"B": 1},
		HelloInterval: time.Hour,
		InfoInterval:  time.Hour,
		NeighborDead:  time.Hour,
		NodeDead:      time.Hour,
	}
	sup, _ := newTestSupervisor(t, cfg, algo)

	sup.events <- forwarder.RoutingEvent{Type: envelope.TypeHello, From: "B", Payload: map[string]any{"metric": 1.0}}

	deadline := time.After(time.Second)
	for {
		algo.mu.Lock()
		got := len(algo.helloCalls) > 0 && algo.recomputes > 0
		algo.mu.Unlock()
		if got {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected OnHello and Recompute to be called")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestAgingPurgesSilentNeighbor(t *testing.T) {
	algo := &fakeAlgorithm{}
	cfg := Config{
		Me:            "A",
		Proto:         envelope.ProtoFlooding,
		NeighborCosts: map[string]float64{"B": 1},
		HelloInterval: time.Hour,
		InfoInterval:  time.Hour,
		NeighborDead:  time.Second,
		NodeDead:      time.Hour,
	}
	sup, _ := newTestSupervisor(t, cfg, algo)

	sup.events <- forwarder.RoutingEvent{Type: envelope.TypeHello, From: "B", Payload: map[string]any{"metric": 1.0}}
	time.Sleep(100 * time.Millisecond) // let the routing task mark B active

	time.Sleep(2 * time.Second) // past NeighborDead, aging tick should purge B

	deadline := time.After(time.Second)
	for {
		if contains(algo.purgedNodes(), "B") {
			return
		}
		select {
		case <-deadline:
			t.Fatal("expected B to be purged after NeighborDead elapsed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHelloFromUnconfiguredPeerUpdatesLastSeenButNotAlgorithm(t *testing.T) {
	algo := &fakeAlgorithm{}
	cfg := Config{
		Me:            "A",
		Proto:         envelope.ProtoFlooding,
		NeighborCosts: map[string]float64{"B": 1},
		HelloInterval: time.Hour,
		InfoInterval:  time.Hour,
		NeighborDead:  time.Hour,
		NodeDead:      time.Hour,
	}
	sup, _ := newTestSupervisor(t, cfg, algo)

	sup.events <- forwarder.RoutingEvent{Type: envelope.TypeHello, From: "Z", Payload: map[string]any{"metric": 1.0}}

	deadline := time.After(time.Second)
	for {
		sup.mu.Lock()
		_, seen := sup.neighborLastSeen["Z"]
		_, active := sup.activeNeighbors["Z"]
		sup.mu.Unlock()
		if seen {
			if active {
				t.Fatal("unconfigured peer should never become an active neighbor")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected last_seen to be recorded for an unconfigured peer's hello")
		case <-time.After(10 * time.Millisecond):
		}
	}

	algo.mu.Lock()
	defer algo.mu.Unlock()
	if len(algo.helloCalls) != 0 {
		t.Fatalf("expected OnHello not to be called for an unconfigured peer, got %v", algo.helloCalls)
	}
}

func contains(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}
