// Package envelope defines the single message structure carried over the
// transport substrate and the codec that parses, validates and normalizes
// it. An Envelope is the only thing that ever crosses the wire; routing
// algorithms and the forwarder never see raw bytes.
package envelope

import (
	"fmt"

	"github.com/google/uuid"
)

// Proto identifies the routing discipline an Envelope is travelling under.
type Proto string

const (
	ProtoFlooding Proto = "flooding"
	ProtoLSR      Proto = "lsr"
	ProtoDVR      Proto = "dvr"
	ProtoDijkstra Proto = "dijkstra"
)

// Type distinguishes control traffic from application data.
type Type string

const (
	TypeHello   Type = "hello"
	TypeInfo    Type = "info"
	TypeMessage Type = "message"
	TypeEcho    Type = "echo"
)

// Broadcast is the reserved destination meaning "every node".
const Broadcast = "*"

// DefaultTTL is applied when an inbound envelope omits ttl.
const DefaultTTL = 8

// MaxTTL is the upper bound enforced by Validate.
const MaxTTL = 64

// Header is a single-key mapping, matching the wire shape used by peer
// implementations that send headers as a sequence of one-entry objects
// (e.g. [{"seq": 3}, {"age": 12}]) rather than one flat map.
type Header map[string]any

// Envelope is the sole message type on the wire. See spec §3 for the wire
// contract; field names are alias-exact and must not be Go-mangled on the
// wire (enforced by the json tags below).
type Envelope struct {
	Proto   Proto  `json:"proto"`
	Type    Type   `json:"type"`
	ID      string `json:"id"`
	From    string `json:"from"`
	Origin  string `json:"origin"`
	Via     string `json:"via,omitempty"`
	To      string `json:"to"`
	TTL     int    `json:"ttl"`
	Headers []Header `json:"headers"`
	Payload any    `json:"payload"`
}

// New builds an Envelope with a freshly generated ID and the defaults the
// codec would otherwise fill in on receipt.
func New(proto Proto, typ Type, from, to string, payload any) Envelope {
	return Envelope{
		Proto:   proto,
		Type:    typ,
		ID:      uuid.NewString(),
		From:    from,
		Origin:  from,
		To:      to,
		TTL:     DefaultTTL,
		Headers: []Header{},
		Payload: payload,
	}
}

// Clone returns a deep-enough copy safe to mutate (TTL, From, Via) without
// affecting the original, which may still be referenced by other in-flight
// forwarding branches of a flood.
func (e Envelope) Clone() Envelope {
	c := e
	c.Headers = make([]Header, len(e.Headers))
	copy(c.Headers, e.Headers)
	return c
}

// HeaderValue returns the value of the first header matching key.
func (e Envelope) HeaderValue(key string) (any, bool) {
	for _, h := range e.Headers {
		if v, ok := h[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// WithHeader appends a single-key header, matching the on-wire sequence
// shape rather than merging into an existing map.
func (e Envelope) WithHeader(key string, value any) Envelope {
	e.Headers = append(append([]Header{}, e.Headers...), Header{key: value})
	return e
}

// DecTTL returns a copy with ttl decremented by one, floored at 0.
func (e Envelope) DecTTL() Envelope {
	c := e.Clone()
	if c.TTL > 0 {
		c.TTL--
	}
	return c
}

// Validate enforces the invariants of spec §3: ttl in range, required
// fields present. It does not mutate e; Parse fills defaults. Multiple
// violations are aggregated so a caller can log everything wrong with one
// envelope at once, the way bundle.Bundle.checkValid aggregates block
// errors in the teacher lineage.
func (e Envelope) Validate() error {
	var errs error

	if e.ID == "" {
		errs = appendErr(errs, fmt.Errorf("envelope: missing id"))
	}
	if e.From == "" {
		errs = appendErr(errs, fmt.Errorf("envelope: missing from"))
	}
	if e.To == "" {
		errs = appendErr(errs, fmt.Errorf("envelope: missing to"))
	}
	if e.TTL < 0 || e.TTL > MaxTTL {
		errs = appendErr(errs, fmt.Errorf("envelope: ttl %d out of range [0, %d]", e.TTL, MaxTTL))
	}
	switch e.Type {
	case TypeHello, TypeInfo, TypeMessage, TypeEcho:
	default:
		errs = appendErr(errs, fmt.Errorf("envelope: unknown type %q", e.Type))
	}

	return errs
}

// IsUnknownType reports whether e.Type is not one of the recognized types,
// regardless of e's other fields. This is the validation failure the forwarder is required
// to treat as "drop silently, log, never crash" rather than a hard reject.
func (e Envelope) IsUnknownType() bool {
	switch e.Type {
	case TypeHello, TypeInfo, TypeMessage, TypeEcho:
		return false
	default:
		return true
	}
}
