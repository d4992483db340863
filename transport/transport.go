// Package transport defines the substrate contract (spec §6): my_id,
// send(dest, envelope), and an inbound stream of envelopes. Three
// realizations live in the tcpline, pubsub and wsbus subpackages; the core
// never imports any of them directly, only this interface — the same separation
// cla.Convergence draws between the core and STCP/MTCP/TCPCLv4 in the
// teacher lineage.
package transport

import (
	"context"

	"github.com/routerlab/node/envelope"
)

// Transport is the only surface the routing core depends on.
type Transport interface {
	// MyID returns this node's identifier.
	MyID() string

	// Send transmits e to the node identified by dest. It completes when
	// the envelope has been handed to the substrate, not when the peer
	// receives it (spec §6).
	Send(ctx context.Context, dest string, e envelope.Envelope) error

	// Inbound returns a channel of envelopes received from any peer. The
	// tcpline and pubsub realizations close the channel when they shut
	// down; wsbus leaves it open.
	Inbound() <-chan envelope.Envelope

	// Close shuts the transport down, releasing any sockets or
	// subscriptions it holds.
	Close() error
}

// NameUpdater is an optional capability a Transport may implement to
// accept a refreshed node id -> address mapping without restarting,
// used when the names file changes on disk (routerconfig.Watcher).
type NameUpdater interface {
	SetNames(names map[string]string)
}
