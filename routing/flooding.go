package routing

// Flooding is the degenerate routing discipline behind --proto flooding:
// it records which configured neighbors have sent hellos but never builds
// a next-hop table, because the forwarder never consults one for ProtoFlooding
// envelopes — everything is flooded to every neighbor but the previous
// hop. Modeled on EpidemicRouting (core/routing_epidemic.go), which is
// likewise state-free: epidemic routing relies entirely on the
// dedup/anti-echo machinery rather than a computed table.
type Flooding struct {
	live liveness
}

// NewFlooding constructs a Flooding algorithm instance.
func NewFlooding() *Flooding { return &Flooding{} }

func (f *Flooding) OnInit(me string, neighborCosts map[string]float64) {
	f.live = newLiveness(me, neighborCosts)
}

func (f *Flooding) OnHello(neighbor string, _ float64) {
	f.live.markActive(neighbor)
}

func (f *Flooding) OnInfo(string, any)                 {} // flooding exchanges no routing state
func (f *Flooding) OnMessageEdge(string, string, float64) {}
func (f *Flooding) Recompute()                         {}

// NextHop always reports unreachable: ProtoFlooding envelopes are never
// unicast, so nothing ever calls this in practice.
func (f *Flooding) NextHop(string) (string, bool) { return "", false }

func (f *Flooding) BuildInfo() any { return nil }

func (f *Flooding) PurgeNode(node string) {
	delete(f.live.activeNeighbors, node)
	delete(f.live.lastSeen, node)
}
