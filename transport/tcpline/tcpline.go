// Package tcpline is a line-delimited TCP realization of transport.Transport
// (spec §6): every Envelope is one JSON object terminated by \n. Modeled on
// cla/mtcp's MTCPServer/MTCPClient pair — an accept loop spawning one
// handler goroutine per connection, and a per-peer client with a mutex
// guarding writes — but framed with newlines and JSON instead of MTCP's
// length-prefixed CBOR data units.
package tcpline

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/routerlab/node/envelope"
)

// Transport is a line-delimited TCP connector. It listens on listenAddr
// for inbound connections and lazily dials out to peers by address,
// keeping one persistent connection per destination node id.
type Transport struct {
	me         string
	listenAddr string

	namesMu sync.RWMutex
	names   map[string]string // node id -> host:port

	inbound chan envelope.Envelope

	mu      sync.Mutex
	clients map[string]*client

	listener net.Listener
	stopSyn  chan struct{}
	stopAck  chan struct{}
}

type client struct {
	mu   sync.Mutex
	conn net.Conn
}

// New starts listening on listenAddr and returns a Transport ready to
// Send to any node id present in names.
func New(me, listenAddr string, names map[string]string) (*Transport, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("tcpline: listen %s: %w", listenAddr, err)
	}

	t := &Transport{
		me:         me,
		listenAddr: listenAddr,
		names:      names,
		inbound:    make(chan envelope.Envelope, 256),
		clients:    make(map[string]*client),
		listener:   ln,
		stopSyn:    make(chan struct{}),
		stopAck:    make(chan struct{}),
	}

	go t.acceptLoop()

	return t, nil
}

func (t *Transport) acceptLoop() {
	defer close(t.stopAck)

	for {
		select {
		case <-t.stopSyn:
			t.listener.Close()
			return
		default:
		}

		if tcpLn, ok := t.listener.(*net.TCPListener); ok {
			tcpLn.SetDeadline(time.Now().Add(200 * time.Millisecond))
		}

		conn, err := t.listener.Accept()
		if err != nil {
			continue
		}
		go t.handleConn(conn)
	}
}

func (t *Transport) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		e, err := envelope.ParseLine(line)
		if err != nil {
			log.WithError(err).Debug("tcpline: dropping malformed line")
			continue
		}

		select {
		case t.inbound <- e:
		case <-t.stopSyn:
			return
		}
	}
}

func (t *Transport) MyID() string { return t.me }

func (t *Transport) Inbound() <-chan envelope.Envelope { return t.inbound }

// Send dials (or reuses) a connection to dest's configured address and
// writes one newline-terminated JSON line. Per spec §6, Send completes
// when the line has been handed to the socket, not when the peer reads it.
func (t *Transport) Send(ctx context.Context, dest string, e envelope.Envelope) error {
	t.namesMu.RLock()
	addr, ok := t.names[dest]
	t.namesMu.RUnlock()
	if !ok {
		return fmt.Errorf("tcpline: no address known for node %q", dest)
	}

	c, err := t.clientFor(dest, addr)
	if err != nil {
		return err
	}

	data, err := envelope.Serialize(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, dialErr := (&net.Dialer{Timeout: 2 * time.Second}).DialContext(ctx, "tcp", addr)
		if dialErr != nil {
			return fmt.Errorf("tcpline: dial %s: %w", addr, dialErr)
		}
		c.conn = conn
	}

	if _, werr := c.conn.Write(data); werr != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("tcpline: write to %s: %w", addr, werr)
	}

	return nil
}

func (t *Transport) clientFor(dest, addr string) (*client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[dest]; ok {
		return c, nil
	}
	c := &client{}
	t.clients[dest] = c
	return c, nil
}

// SetNames replaces the node id -> address mapping, satisfying
// transport.NameUpdater so a names-file edit can take effect without a
// restart. Existing connections to addresses no longer present are left
// alone; they simply won't be redialed once their addr entry changes.
func (t *Transport) SetNames(names map[string]string) {
	t.namesMu.Lock()
	defer t.namesMu.Unlock()
	t.names = names
}

// Close shuts the listener and every outbound connection down.
func (t *Transport) Close() error {
	close(t.stopSyn)
	<-t.stopAck

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.clients {
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	}
	close(t.inbound)
	return nil
}
