// Package gateway implements the internet-side HTTP+WebSocket API that a
// web UI or CLI client drives: progress/log streaming over WebSocket, and
// a small REST surface for submitting outbound NOTE/ZAP requests. It talks
// to the link core exclusively through session.Session and the events
// tap, never reaching into link/session's internals.
package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"

	"github.com/n5htr/hamstr/link/events"
)

// Server fronts the link core with an HTTP API. It subscribes to the
// supplied events.Tap and fans every event out to connected WebSocket
// clients. Outbound work requested via HTTP is enqueued with Submit and
// read by the radio-side session loop from the Requests channel.
type Server struct {
	tap      *events.Tap
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*wsClient

	requests chan Request
}

// Request is one outbound payload a web client asked the gateway to relay
// over the radio link (NOTE, ZAP_KIND9734_REQUEST, etc.).
type Request struct {
	ID      string
	Kind    string
	Payload []byte
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan events.Event
}

// New constructs a Server subscribed to tap.
func New(tap *events.Tap) *Server {
	s := &Server{
		tap:      tap,
		clients:  make(map[string]*wsClient),
		requests: make(chan Request, 64),
	}
	tap.Subscribe(events.ObserverFunc(s.broadcast))
	return s
}

func (s *Server) broadcast(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		select {
		case c.send <- e:
		default: // slow client: drop rather than block the telemetry tap
		}
	}
}

// Handler returns the complete HTTP handler, wrapped in access logging via
// gorilla/handlers.LoggingHandler rather than hand-rolling log middleware.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/events", s.handleWS)
	mux.HandleFunc("/api/send", s.handleSend)
	return handlers.LoggingHandler(accessLog, mux)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan events.Event, 256)}

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		conn.Close()
	}()

	for e := range c.send {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Kind    string `json:"kind"`
		Payload string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req := Request{ID: uuid.NewString(), Kind: body.Kind, Payload: []byte(body.Payload)}
	select {
	case s.requests <- req:
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"id": req.ID})
	default:
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}
}

// Requests returns the channel the radio-side loop should drain to pick
// up outbound work submitted via the HTTP API or the mailbox watcher.
func (s *Server) Requests() <-chan Request { return s.requests }

// Submit enqueues req as if it had arrived over the HTTP API, used by the
// mailbox watcher to feed file-dropped payloads into the same pipeline.
func (s *Server) Submit(req Request) { s.requests <- req }
