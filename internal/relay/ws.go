package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn adapts a gorilla websocket connection to the hub's Conn interface.
// Writes are serialized, a write deadline bounds slow consumers, and the
// first failed write marks the connection not ready so the hub stops
// sending to it.
type WSConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	pingInterval time.Duration

	mu     sync.Mutex
	ready  bool
	closed bool
	done   chan struct{}
}

// NewWSConn wraps ws. The connection counts as ready until a write fails
// or Close is called.
func NewWSConn(ws *websocket.Conn, writeTimeout, pingInterval time.Duration) *WSConn {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	c := &WSConn{
		ws:           ws,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		ready:        true,
		done:         make(chan struct{}),
	}
	if pingInterval > 0 {
		go c.pingLoop()
	}
	return c
}

func (c *WSConn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *WSConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return websocket.ErrCloseSent
	}

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.ready = false
		return err
	}
	return nil
}

func (c *WSConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.ready = false
	close(c.done)
	c.mu.Unlock()
	return c.ws.Close()
}

// ReadLoop drains incoming frames until the peer disconnects. The relay is
// one-way, so inbound payloads are discarded; the loop exists to surface
// close frames and keep the connection's read side serviced.
func (c *WSConn) ReadLoop() {
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *WSConn) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if !c.ready {
				c.mu.Unlock()
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.ready = false
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}
