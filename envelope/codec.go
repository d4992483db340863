package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// appendErr centralizes the multierror.Append call so Validate reads as a
// flat list of checks rather than repeating the aggregation boilerplate,
// the way bundle.PrimaryBlock.checkValid does in the teacher lineage.
func appendErr(errs error, err error) error {
	return multierror.Append(errs, err)
}

// wireEnvelope mirrors Envelope but tolerates the peer variations the codec
// must accept: headers as a bare map instead of a sequence, and a missing
// ttl/origin.
type wireEnvelope struct {
	Proto   Proto           `json:"proto"`
	Type    Type            `json:"type"`
	ID      string          `json:"id"`
	From    string          `json:"from"`
	Origin  string          `json:"origin"`
	Via     string          `json:"via,omitempty"`
	To      string          `json:"to"`
	TTL     *int            `json:"ttl"`
	Headers json.RawMessage `json:"headers"`
	Payload any             `json:"payload"`
}

// Parse decodes one wire-format JSON envelope, tolerating the peer
// variations spec §4.1 requires: headers-as-map gets wrapped into a single-
// element sequence, a missing ttl defaults to 8, and a missing origin is
// filled from from. Malformed JSON, and headers that are neither a sequence
// nor a mapping, are hard errors; everything else is a best-effort
// normalization so a forwarder can decide whether to drop it.
func Parse(raw []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return Envelope{}, fmt.Errorf("envelope: malformed json: %w", err)
	}

	e := Envelope{
		Proto:  w.Proto,
		Type:   w.Type,
		ID:     w.ID,
		From:   w.From,
		Origin: w.Origin,
		Via:    w.Via,
		To:     w.To,
		Payload: w.Payload,
	}

	if w.TTL == nil {
		e.TTL = DefaultTTL
	} else {
		e.TTL = *w.TTL
	}

	if e.Origin == "" {
		e.Origin = e.From
	}

	headers, err := parseHeaders(w.Headers)
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope: %w", err)
	}
	e.Headers = headers

	return e, nil
}

// parseHeaders accepts either the canonical sequence-of-single-key-maps
// shape or a bare map (a variation some peers emit), and normalizes both
// into the sequence form. Absent headers default to an empty sequence.
func parseHeaders(raw json.RawMessage) ([]Header, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []Header{}, nil
	}

	var seq []Header
	if err := json.Unmarshal(raw, &seq); err == nil {
		if seq == nil {
			seq = []Header{}
		}
		return seq, nil
	}

	var single Header
	if err := json.Unmarshal(raw, &single); err == nil {
		return []Header{single}, nil
	}

	return nil, fmt.Errorf("headers: neither a sequence nor a mapping")
}

// Serialize renders an Envelope as the canonical wire form: alias-exact
// keys, headers always as a sequence, UTF-8 JSON.
func Serialize(e Envelope) ([]byte, error) {
	if e.Headers == nil {
		e.Headers = []Header{}
	}
	return json.Marshal(e)
}

// ParseLine is a convenience for the line-delimited TCP transport: it
// trims nothing (the connector strips the newline) and just calls Parse.
func ParseLine(line []byte) (Envelope, error) {
	return Parse(line)
}
