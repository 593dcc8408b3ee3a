// Package graph serves the workspace graph view: documents as nodes, resolved
// handle references as edges. A small embedded page renders the graph and
// stays current over a websocket; the server pushes a full snapshot on every
// change, so clients carry no incremental-sync state.
package graph

import (
	"embed"
	"encoding/json"
	"io/fs"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("graph")

// Node is one document. ID is the workspace-relative path.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	// Tree is the relative marker directory, empty for unrooted documents.
	Tree string `json:"tree,omitempty"`
	// Defs is the number of handles the document defines.
	Defs int `json:"defs"`
}

// Link is a resolved reference: Source references a handle Target defines.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Snapshot is the complete graph at one point in time.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Message is the websocket wire format.
type Message struct {
	Op    string    `json:"op"`
	Graph *Snapshot `json:"graph"`
}

//go:embed static/*
var staticFiles embed.FS

// Server holds the current snapshot and the connected clients.
type Server struct {
	mu       sync.Mutex
	snapshot Snapshot
	clients  map[*websocket.Conn]bool
	httpSrv  *http.Server
	url      string

	upgrader websocket.Upgrader
}

func NewServer() *Server {
	return &Server{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start listens on addr ("host:0" picks a free port) and serves the view in
// the background. It is idempotent: a second call returns the URL of the
// already-running server.
func (s *Server) Start(addr string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.url != "" {
		return s.url, nil
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	s.httpSrv = &http.Server{Handler: s.routes()}
	go func() {
		if err := s.httpSrv.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Errorf("serve: %s", err)
		}
	}()

	s.url = "http://" + l.Addr().String() + "/"
	log.Infof("graph view on %s", s.url)
	return s.url, nil
}

// URL returns the address of the running server, or "" before Start.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Close drops all clients and stops the HTTP server.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)

	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/ws", s.handleWS)

	static, _ := fs.Sub(staticFiles, "static")
	r.Handle("/*", http.FileServer(http.FS(static)))

	return r
}

// Publish replaces the snapshot and pushes it to every client.
func (s *Server) Publish(snap Snapshot) {
	data, err := json.Marshal(Message{Op: "snapshot", Graph: &snap})
	if err != nil {
		log.Errorf("marshal snapshot: %s", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = snap
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warningf("broadcast: %s", err)
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// handleWS upgrades the connection and sends the current snapshot.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("upgrade: %s", err)
		return
	}

	s.mu.Lock()
	snap := s.snapshot
	data, err := json.Marshal(Message{Op: "snapshot", Graph: &snap})
	if err == nil {
		err = conn.WriteMessage(websocket.TextMessage, data)
	}
	if err != nil {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	// drain client frames to notice the close
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
