// Package wsbus is a websocket-framed realization of transport.Transport,
// exercising a second transport shape beyond tcpline's raw TCP lines —
// one text frame per Envelope — the way the teacher's
// agent.WebSocketAgentConnector frames application-agent messages over a
// gorilla/websocket connection instead of a bare socket.
package wsbus

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/routerlab/node/envelope"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Transport listens for inbound websocket connections (one per peer) on
// listenAddr, and dials out to peer addresses from names on first Send.
type Transport struct {
	me         string
	listenAddr string

	namesMu sync.RWMutex
	names   map[string]string

	inbound chan envelope.Envelope
	server  *http.Server

	mu    sync.Mutex
	peers map[string]*websocket.Conn
}

// New starts an HTTP server upgrading every connection to websocket on
// listenAddr and returns a Transport ready to Send.
func New(me, listenAddr string, names map[string]string) (*Transport, error) {
	t := &Transport{
		me:         me,
		listenAddr: listenAddr,
		names:      names,
		inbound:    make(chan envelope.Envelope, 256),
		peers:      make(map[string]*websocket.Conn),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/envelopes", t.handleUpgrade)
	t.server = &http.Server{Addr: listenAddr, Handler: mux}

	go func() {
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("wsbus: listener failed")
		}
	}()

	return t, nil
}

func (t *Transport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("wsbus: upgrade failed")
		return
	}
	go t.readLoop(conn)
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		e, err := envelope.Parse(data)
		if err != nil {
			log.WithError(err).Debug("wsbus: dropping malformed frame")
			continue
		}
		t.inbound <- e
	}
}

func (t *Transport) MyID() string { return t.me }

func (t *Transport) Inbound() <-chan envelope.Envelope { return t.inbound }

func (t *Transport) Send(ctx context.Context, dest string, e envelope.Envelope) error {
	t.namesMu.RLock()
	addr, ok := t.names[dest]
	t.namesMu.RUnlock()
	if !ok {
		return fmt.Errorf("wsbus: no address known for node %q", dest)
	}

	conn, err := t.connFor(dest, addr)
	if err != nil {
		return err
	}

	data, err := envelope.Serialize(e)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (t *Transport) connFor(dest, addr string) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.peers[dest]; ok {
		return c, nil
	}

	url := fmt.Sprintf("ws://%s/envelopes", addr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsbus: dial %s: %w", url, err)
	}
	t.peers[dest] = conn
	go t.readLoop(conn)
	return conn, nil
}

// SetNames replaces the node id -> address mapping, satisfying
// transport.NameUpdater so a names-file edit can take effect without a
// restart.
func (t *Transport) SetNames(names map[string]string) {
	t.namesMu.Lock()
	defer t.namesMu.Unlock()
	t.names = names
}

// Close closes every dialed peer connection and the HTTP server. The
// Inbound channel is not closed.
func (t *Transport) Close() error {
	t.mu.Lock()
	for _, c := range t.peers {
		c.Close()
	}
	t.mu.Unlock()
	return t.server.Close()
}
