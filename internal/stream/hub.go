// Package stream pushes token snapshots to browsers over WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tokenticker/internal/feed"
)

var _ feed.Sink = (*Hub)(nil)

// Config holds hub configuration.
type Config struct {
	SendBuffer     int           // Queued messages per client before it is dropped (default: 16)
	WriteTimeout   time.Duration // Per-write deadline (default: 10s)
	PongWait       time.Duration // Max silence before a client is considered gone (default: 60s)
	PingPeriod     time.Duration // Keepalive ping interval, must be below PongWait (default: 54s)
	AllowedOrigins []string      // Browser origins allowed to connect; empty or "*" allows all
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendBuffer:   16,
		WriteTimeout: 10 * time.Second,
		PongWait:     60 * time.Second,
		PingPeriod:   54 * time.Second,
	}
}

// Hub fans snapshots out to connected WebSocket clients. Each new client gets
// the current snapshot first and then every published update.
type Hub struct {
	cfg      Config
	current  func() feed.Snapshot
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	closed  bool
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates a Hub. current supplies the snapshot sent on connect.
func NewHub(cfg Config, current func() feed.Snapshot, logger *slog.Logger) *Hub {
	def := DefaultConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		cfg:     cfg,
		current: current,
		logger:  logger,
		clients: make(map[uuid.UUID]*client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, "*") || slices.Contains(h.cfg.AllowedOrigins, origin)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues the snapshot for every client. Clients whose queue is full
// are disconnected rather than allowed to stall the feed.
func (h *Hub) Publish(_ context.Context, s feed.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	var slow []*client
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", "client", c.id)
		h.remove(c)
	}
	return nil
}

// Close disconnects every client and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[uuid.UUID]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// add registers c and queues the current snapshot under the same lock, so a
// concurrent Publish either lands in current or reaches c after it.
func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	if h.current != nil {
		if payload, err := json.Marshal(h.current()); err == nil {
			c.send <- payload
		}
	}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
}

// ServeHTTP upgrades the request and streams snapshots until the client goes
// away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}

	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}

	if !h.add(c) {
		conn.Close()
		return
	}
	h.logger.Debug("websocket client connected", "client", c.id, "remote", r.RemoteAddr)

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards client messages and keeps the read deadline fresh on pong.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket client read error", "client", c.id, "err", err)
			}
			return
		}
	}
}

// writeLoop owns all writes to the connection and closes it on exit.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		h.logger.Debug("websocket client disconnected", "client", c.id)
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.cfg.WriteTimeout),
			)
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
