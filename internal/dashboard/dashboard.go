// Package dashboard serves a live view of RowerMetrics over a websocket:
// a ticker polls the pipeline's snapshot surface and pushes the result to
// every connected browser. The core never renders anything itself; this
// is strictly a read-only collaborator.
package dashboard

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ergomonitor/internal/metrics"
	"ergomonitor/internal/stroke"
)

// snapshotSource is the narrow read-only surface the dashboard polls.
type snapshotSource interface {
	Snapshot() metrics.RowerMetrics
	LastEvent() *stroke.Event
	Phase() stroke.Phase
}

// Server serves a websocket endpoint that streams RowerMetrics snapshots
// to every connected browser at a fixed interval.
type Server struct {
	src      snapshotSource
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New creates a Server that polls src every interval.
func New(src snapshotSource, interval time.Duration) *Server {
	return &Server{
		src:      src,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is a local monitoring tool, not a public
			// service; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

type wireSnapshot struct {
	Phase   string               `json:"phase"`
	Metrics metrics.RowerMetrics `json:"metrics"`
	Event   *stroke.Event        `json:"lastEvent,omitempty"`
}

// Handler upgrades the HTTP request to a websocket and registers the
// connection to receive the broadcast loop's snapshots.
func (s *Server) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[dashboard] upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	log.Printf("[dashboard] client connected (%d total)", len(s.clients))

	// Drain and discard inbound frames so the read side notices a closed
	// connection; the dashboard is push-only.
	go func() {
		defer s.dropClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) dropClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

// Run broadcasts a snapshot to every connected client every interval
// until stop is closed.
func (s *Server) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.broadcast()
		}
	}
}

func (s *Server) broadcast() {
	payload := wireSnapshot{
		Phase:   s.src.Phase().String(),
		Metrics: s.src.Snapshot(),
		Event:   s.src.LastEvent(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[dashboard] marshal error: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.SetWriteDeadline(time.Now().Add(s.interval))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[dashboard] write error: %v", err)
			go s.dropClient(conn)
		}
	}
}
