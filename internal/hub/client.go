package hub

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one live websocket connection. Frames are queued on send and
// written by writePump; a nil frame means "close after what is queued".
type Client struct {
	id        string
	addr      string
	conn      *websocket.Conn
	hub       *Hub
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter
}

func newClient(id string, conn *websocket.Conn, hub *Hub, addr string) *Client {
	conn.SetReadLimit(hub.opts.MaxMessageSize)

	return &Client{
		id:      id,
		addr:    addr,
		conn:    conn,
		hub:     hub,
		send:    make(chan []byte, hub.opts.SendBufferSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(hub.opts.MessagesPerSec), hub.opts.MessageBurst),
	}
}

func (c *Client) ID() string {
	return c.id
}

// enqueue queues a frame without blocking. A client whose buffer is full is
// too slow to keep up and gets disconnected.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.hub.sugar.Warnf("Send buffer of connection %s (%s) is full, disconnecting", c.id, c.addr)
		c.close()
		return false
	}
}

func (c *Client) sendEvent(event string, data any) {
	frame, err := encode(event, data)
	if err != nil {
		c.hub.sugar.Errorw("Couldn't encode event", "event", event, "error", err)
		return
	}
	c.enqueue(frame)
}

func (c *Client) sendError(message string) {
	c.sendEvent(EventError, ErrorPayload{Message: message})
}

// kick sends an error event, flushes the queue and then closes the connection.
func (c *Client) kick(message string) {
	c.sendError(message)
	c.enqueue(nil)
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.hub.sugar.Debugf("Error closing connection %s: %v", c.id, err)
		}
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.Allow() {
			c.hub.sugar.Debugf("Rate limit exceeded for connection %s (%s), discarding frame", c.id, c.addr)
			c.sendError("Rate limit exceeded")
			continue
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.sendError("Malformed event")
			continue
		}

		c.hub.handleInbound(c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if frame == nil {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.sugar.Debugf("Write to connection %s failed: %v", c.id, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.hub.sugar.Warnf("Frame from %s exceeded maximum size of %d bytes", c.addr, c.hub.opts.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.hub.sugar.Debugf("Connection %s closed by client", c.id)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.hub.sugar.Debugf("Connection %s closed: %v", c.id, err)
	default:
		c.hub.sugar.Debugf("Read from connection %s failed: %v", c.id, err)
	}
}

func isExpectedCloseError(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent)
}
