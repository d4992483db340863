package forwarder

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routerlab/node/envelope"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []struct {
		neighbor string
		e        envelope.Envelope
	}
	failFor map[string]bool
}

func (f *fakeSender) Send(neighbor string, e envelope.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[neighbor] {
		return assert.AnError
	}
	f.sent = append(f.sent, struct {
		neighbor string
		e        envelope.Envelope
	}{neighbor, e})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeRouting struct {
	table map[string]string
}

func (r *fakeRouting) NextHop(dest string) (string, bool) {
	hop, ok := r.table[dest]
	return hop, ok
}

func newTestForwarder(me string, neighbors []string, sender Sender, routing NextHopper) (*Forwarder, chan RoutingEvent, chan envelope.Envelope) {
	events := make(chan RoutingEvent, 16)
	delivered := make(chan envelope.Envelope, 16)
	f := New(me, neighbors, sender, routing, events, func(e envelope.Envelope) { delivered <- e })
	return f, events, delivered
}

func TestHandleDeliversLocalMessage(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{}}
	f, _, delivered := newTestForwarder("B", nil, sender, &fakeRouting{})

	e := envelope.New(envelope.ProtoFlooding, envelope.TypeMessage, "A", "B", "hi")
	f.Handle(e)

	select {
	case got := <-delivered:
		assert.Equal(t, "hi", got.Payload)
	default:
		t.Fatal("expected local delivery")
	}
	assert.Equal(t, 0, sender.count())
}

func TestHandleDropsDuplicateByID(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{}}
	f, _, delivered := newTestForwarder("B", []string{"C"}, sender, &fakeRouting{})

	e := envelope.New(envelope.ProtoFlooding, envelope.TypeMessage, "A", "*", "hi")
	f.Handle(e)
	f.Handle(e) // duplicate by id

	count := 0
	for {
		select {
		case <-delivered:
			count++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, count)
}

func TestHandleDropsExpiredTTL(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{}}
	f, _, delivered := newTestForwarder("B", []string{"C"}, sender, &fakeRouting{})

	e := envelope.New(envelope.ProtoFlooding, envelope.TypeMessage, "A", "C", "hi")
	e.TTL = 0
	f.Handle(e)

	select {
	case <-delivered:
		t.Fatal("expired ttl envelope should not be delivered")
	default:
	}
	assert.Equal(t, 0, sender.count())
}

func TestFloodExcludesPreviousHop(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{}}
	f, _, _ := newTestForwarder("B", []string{"A", "C", "D"}, sender, &fakeRouting{})

	e := envelope.New(envelope.ProtoFlooding, envelope.TypeMessage, "A", "*", "hi")
	f.Handle(e)

	require.Equal(t, 2, sender.count())
	for _, s := range sender.sent {
		assert.NotEqual(t, "A", s.neighbor)
	}
}

func TestFloodExcludesViaOverFromWhenBothSet(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{}}
	f, _, _ := newTestForwarder("B", []string{"A", "C", "D"}, sender, &fakeRouting{})

	e := envelope.New(envelope.ProtoFlooding, envelope.TypeMessage, "A", "*", "hi")
	e.Via = "C" // a relayed envelope: A originated it, but C forwarded it to B
	f.Handle(e)

	require.Equal(t, 2, sender.count())
	for _, s := range sender.sent {
		assert.NotEqual(t, "C", s.neighbor)
	}
}

func TestUnreachableUnicastIsDropped(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{}}
	f, _, _ := newTestForwarder("A", []string{"B"}, sender, &fakeRouting{table: map[string]string{}})

	e := envelope.New(envelope.ProtoDijkstra, envelope.TypeMessage, "A", "Z", "hi")
	f.Handle(e)

	assert.Equal(t, 0, sender.count())
}

func TestUnicastUsesNextHop(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{}}
	f, _, _ := newTestForwarder("A", []string{"B"}, sender, &fakeRouting{table: map[string]string{"C": "B"}})

	e := envelope.New(envelope.ProtoDVR, envelope.TypeMessage, "A", "C", "hi")
	f.Handle(e)

	require.Equal(t, 1, sender.count())
	assert.Equal(t, "B", sender.sent[0].neighbor)
}

func TestHelloPublishesRoutingEvent(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{}}
	f, events, _ := newTestForwarder("B", []string{"A"}, sender, &fakeRouting{})

	e := envelope.New(envelope.ProtoFlooding, envelope.TypeHello, "A", "B", map[string]any{"metric": 1.0})
	f.Handle(e)

	select {
	case ev := <-events:
		assert.Equal(t, envelope.TypeHello, ev.Type)
		assert.Equal(t, "A", ev.From)
	default:
		t.Fatal("expected a routing event for hello")
	}
}

func TestAdjacencyLearningMessageStopsAtRoutingQueue(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{}}
	f, events, delivered := newTestForwarder("B", []string{"A", "C"}, sender, &fakeRouting{})

	e := envelope.New(envelope.ProtoLSR, envelope.TypeMessage, "A", "*", map[string]any{"src": "A", "dst": "X", "cost": 1.0})
	f.Handle(e)

	select {
	case <-events:
	default:
		t.Fatal("expected an edge-observation routing event")
	}
	assert.Equal(t, 0, sender.count())
	select {
	case <-delivered:
		t.Fatal("adjacency message should not be delivered locally")
	default:
	}
}

func TestUnknownTypeIsDroppedSilently(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{}}
	f, _, delivered := newTestForwarder("B", nil, sender, &fakeRouting{})

	e := envelope.New(envelope.ProtoFlooding, envelope.Type("bogus"), "A", "B", "hi")
	f.Handle(e)

	select {
	case <-delivered:
		t.Fatal("unknown type should not be delivered")
	default:
	}
}

func TestSweepEvictsOldEntries(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{}}
	f, _, _ := newTestForwarder("B", nil, sender, &fakeRouting{})
	f.seenTTL = 0

	e := envelope.New(envelope.ProtoFlooding, envelope.TypeMessage, "A", "B", "hi")
	f.Handle(e)
	f.Sweep()

	f.mu.Lock()
	_, present := f.seen[e.ID]
	f.mu.Unlock()
	assert.False(t, present)
}
