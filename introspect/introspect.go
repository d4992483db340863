// Package introspect exposes a node's live state over plain HTTP/JSON —
// health, active neighbors and the current routing table — for debugging
// a running lab cluster. The router setup (gorilla/mux, one handler per
// endpoint registered on a shared router, JSON responses) follows
// agent.RestAgent's registration style in the teacher lineage, minus the
// request/response protocol RestAgent needs for bundle dispatch: every
// endpoint here is a read-only GET.
package introspect

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// NeighborView is one row of the /neighbors response.
type NeighborView struct {
	Node     string    `json:"node"`
	Cost     float64   `json:"cost"`
	Active   bool      `json:"active"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

// State is the read-only snapshot Server exposes. The node supervisor is
// responsible for keeping it current; Server only ever reads it.
type State struct {
	mu        sync.RWMutex
	me        string
	neighbors []NeighborView
	routes    map[string]string
}

// NewState builds an empty State for node id me.
func NewState(me string) *State {
	return &State{me: me, routes: make(map[string]string)}
}

// SetNeighbors replaces the neighbor snapshot.
func (s *State) SetNeighbors(n []NeighborView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.neighbors = n
}

// SetRoutes replaces the dest -> next_hop snapshot.
func (s *State) SetRoutes(routes map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = routes
}

func (s *State) snapshot() (me string, neighbors []NeighborView, routes map[string]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.me, append([]NeighborView(nil), s.neighbors...), routes
}

// Server is the HTTP introspection endpoint: /healthz, /neighbors, /routes.
type Server struct {
	state  *State
	router *mux.Router
	http   *http.Server
}

// NewServer builds a Server bound to addr, serving state. It does not
// start listening until Start is called.
func NewServer(addr string, state *State) *Server {
	r := mux.NewRouter()
	s := &Server{state: state, router: r}

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/neighbors", s.handleNeighbors).Methods(http.MethodGet)
	r.HandleFunc("/routes", s.handleRoutes).Methods(http.MethodGet)

	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start begins serving in the background. Errors other than a clean
// shutdown are logged, matching the listener goroutines in tcpline/wsbus.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("introspect: listener failed")
		}
	}()
}

// Close shuts the HTTP server down.
func (s *Server) Close() error {
	return s.http.Close()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	me, _, _ := s.state.snapshot()
	writeJSON(w, map[string]any{"status": "ok", "node": me})
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	_, neighbors, _ := s.state.snapshot()
	if neighbors == nil {
		neighbors = []NeighborView{}
	}
	writeJSON(w, neighbors)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	_, _, routes := s.state.snapshot()
	if routes == nil {
		routes = map[string]string{}
	}
	writeJSON(w, routes)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("introspect: failed to encode response")
	}
}
