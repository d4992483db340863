// Package pubsub is a channel-based realization of transport.Transport
// (spec §6) backed by Redis pub/sub: Send publishes to the destination
// node's channel, and Inbound is fed by a subscription to this node's own
// channel. This is the --driver redis connector the spec's CLI contract
// (§6) names; the library itself has no analogue in the teacher repo, so
// it is grounded on the same dependency as the retrieval pack's other
// Redis-backed services (see DESIGN.md).
package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/routerlab/node/envelope"
)

// Transport publishes outbound envelopes to "<channelPrefix><dest>" and
// subscribes to "<channelPrefix><me>" for inbound ones.
type Transport struct {
	me            string
	channelPrefix string

	namesMu sync.RWMutex
	names   map[string]string // node id -> channel identifier override

	rdb *redis.Client
	sub *redis.PubSub

	inbound chan envelope.Envelope
	cancel  context.CancelFunc
}

// New connects to a Redis server at addr and subscribes to this node's
// channel. names maps node id -> channel identifier; a node id absent
// from names publishes to channelPrefix+id by default.
func New(ctx context.Context, me, addr, channelPrefix string, names map[string]string) (*Transport, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pubsub: connect to %s: %w", addr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	t := &Transport{
		me:            me,
		channelPrefix: channelPrefix,
		names:         names,
		rdb:           rdb,
		inbound:       make(chan envelope.Envelope, 256),
		cancel:        cancel,
	}

	t.sub = rdb.Subscribe(runCtx, t.channelFor(me))
	go t.readLoop(runCtx)

	return t, nil
}

func (t *Transport) channelFor(node string) string {
	t.namesMu.RLock()
	ch, ok := t.names[node]
	t.namesMu.RUnlock()
	if ok {
		return ch
	}
	return t.channelPrefix + node
}

// SetNames replaces the node id -> channel identifier mapping, satisfying
// transport.NameUpdater so a names-file edit can take effect without a
// restart.
func (t *Transport) SetNames(names map[string]string) {
	t.namesMu.Lock()
	defer t.namesMu.Unlock()
	t.names = names
}

func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.inbound)

	ch := t.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			e, err := envelope.Parse([]byte(msg.Payload))
			if err != nil {
				log.WithError(err).Debug("pubsub: dropping malformed message")
				continue
			}
			select {
			case t.inbound <- e:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (t *Transport) MyID() string { return t.me }

func (t *Transport) Inbound() <-chan envelope.Envelope { return t.inbound }

// Send publishes e to dest's channel. Per spec §6, this completes when the
// substrate has accepted the publish, not when a subscriber reads it.
func (t *Transport) Send(ctx context.Context, dest string, e envelope.Envelope) error {
	data, err := envelope.Serialize(e)
	if err != nil {
		return err
	}
	return t.rdb.Publish(ctx, t.channelFor(dest), data).Err()
}

// Close unsubscribes and closes the Redis connection.
func (t *Transport) Close() error {
	t.cancel()
	_ = t.sub.Close()
	return t.rdb.Close()
}
