// Package dashboard serves a WebSocket feed of reconciliation activity.
//
// Connected clients receive one message per processed bookmark change, a
// summary after every drain of the event queue, and running statistics.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	MessageTypeChangeApplied MessageType = "change_applied"
	MessageTypeChangeSkipped MessageType = "change_skipped"
	MessageTypeChangeFailed  MessageType = "change_failed"
	MessageTypeDrainComplete MessageType = "drain_complete"
	MessageTypeStats         MessageType = "stats"
)

// Message is one frame sent to dashboard clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	clientBuffer = 32
	writeTimeout = 5 * time.Second
)

// client is one WebSocket subscriber. Frames queue on send and are written
// by the client's own goroutine; a client whose queue is full is dropped.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server accepts dashboard clients and fans messages out to them.
type Server struct {
	addr     string
	listener net.Listener
	http     *http.Server
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	clients map[*client]struct{}

	// stats answers /stats and the welcome frame; set by NewHandler.
	stats func() StatsData

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8787, 0 picks a free port)
	Port int

	// Logger for server activity (default: no-op)
	Logger *zap.SugaredLogger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{Port: 8787}
}

// NewServer returns a server that is not yet listening.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    fmt.Sprintf(":%d", config.Port),
		logger:  logger,
		clients: make(map[*client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Router returns the HTTP routes served by the dashboard.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/", s.handleRoot)
	return r
}

// Start binds the listening socket and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.addr)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Infow("Dashboard server listening", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("Dashboard server error", "error", err)
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for c := range s.clients {
		s.dropLocked(c)
	}
	s.mu.Unlock()

	var err error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		err = errors.Wrap(s.http.Shutdown(ctx), "dashboard shutdown")
	}
	s.wg.Wait()
	s.logger.Info("Dashboard server stopped")
	return err
}

// Broadcast queues msg for every connected client without blocking.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warnw("Failed to marshal message", "type", msg.Type, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.logger.Warnw("Dashboard client too slow, disconnecting", "type", msg.Type)
			s.dropLocked(c)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	welcome := Message{Type: MessageTypeStats, Timestamp: time.Now()}
	if s.stats != nil {
		welcome.Data, _ = json.Marshal(s.stats())
	}
	data, _ := json.Marshal(welcome)
	c.send <- data

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.clients[c] = struct{}{}
	count := len(s.clients)
	s.wg.Add(1)
	s.mu.Unlock()
	s.logger.Infow("Dashboard client connected", "clients", count)

	go s.writeLoop(c)

	// Clients only listen; CloseRead's context ends when the peer leaves.
	<-conn.CloseRead(s.ctx).Done()
	s.drop(c)
}

func (s *Server) writeLoop(c *client) {
	defer s.wg.Done()
	for data := range c.send {
		ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			s.logger.Debugw("Failed to send to client", "error", err)
			s.drop(c)
			break
		}
	}
	_ = c.conn.Close(websocket.StatusGoingAway, "")
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(c)
}

func (s *Server) dropLocked(c *client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
	s.logger.Infow("Dashboard client disconnected", "clients", len(s.clients))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		http.Error(w, "statistics unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.stats())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>marksync</title></head>
<body>
    <h1>marksync</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p><a href="/stats">/stats</a> &middot; <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// GetAddr returns the listening address, or the configured one before Start.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
