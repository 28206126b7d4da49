// Package hub routes committed domain events to the live connections whose
// channels match. It is an explicit registry constructed at process start
// (and fresh in tests), never ambient global state. Delivery is best-effort,
// at-most-once: the store stays the single source of truth and clients
// re-fetch on (re)connect.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"buffet-system/internal/domain"
)

type Config struct {
	// SendBuffer is the per-connection event queue. A connection that cannot
	// drain it in time is dropped and must reconnect.
	SendBuffer   int
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
}

func (c *Config) applyDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = c.PingInterval * 2
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
}

type Hub struct {
	cfg    Config
	logger *zap.Logger

	// mu guards the registry only; it is never held while writing to a
	// socket.
	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

func New(cfg Config, logger *zap.Logger) *Hub {
	cfg.applyDefaults()
	return &Hub{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[*Conn]struct{}),
	}
}

// Register adopts an upgraded websocket with its fixed channel set and
// starts its pumps. Subscriptions never change for the connection's
// lifetime; reconnecting creates a brand-new Conn.
func (h *Hub) Register(ws *websocket.Conn, channels []string) *Conn {
	c := &Conn{
		hub:      h,
		ws:       ws,
		send:     make(chan []byte, h.cfg.SendBuffer),
		channels: make(map[string]struct{}, len(channels)),
		done:     make(chan struct{}),
	}
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	h.add(c)

	go c.writePump()
	go c.readPump()
	return c
}

// Publish relays one event to every connection subscribed to any of its
// channels, preserving per-connection FIFO. A full send buffer drops that
// connection; nobody else is blocked.
func (h *Hub) Publish(evt domain.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("marshal event", zap.Error(err), zap.String("type", string(evt.Type)))
		return
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		if c.subscribed(evt.Channels) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("slow consumer dropped",
				zap.String("type", string(evt.Type)),
				zap.Strings("channels", evt.Channels))
			c.close()
		}
	}
}

// Len reports the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close drops every connection, for shutdown.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}

func (h *Hub) add(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}
