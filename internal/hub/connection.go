package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one live client connection: a pure observer with a fixed channel
// set. Disconnection is terminal; its registry entry is reclaimed and a
// reconnect builds a new Conn.
type Conn struct {
	hub      *Hub
	ws       *websocket.Conn
	send     chan []byte
	channels map[string]struct{}

	// done is closed exactly once on disconnect. send itself is never
	// closed, so a concurrent Publish can never hit a closed channel.
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Conn) subscribed(channels []string) bool {
	for _, ch := range channels {
		if _, ok := c.channels[ch]; ok {
			return true
		}
	}
	return false
}

// close is safe to call from any goroutine and any number of times.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.hub.remove(c)
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump drains the send queue onto the socket and keeps the liveness
// probe ticking. One writer per connection; gorilla requires it.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
			return
		}
	}
}

// readPump discards client frames (connections are observers, mutations go
// over the request API) and enforces the pong deadline.
func (c *Conn) readPump() {
	defer c.close()

	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}
