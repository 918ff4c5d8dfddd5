// Package server manages individual WebSocket clients: read/write pumps,
// payload decoding, rate limiting, and lifecycle control per connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the deadline for a single write to a client.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often ping frames are sent. Must be less
	// than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 256
)

// Client is the transport adapter for one WebSocket connection. It owns the
// session identifier assigned at accept time and translates wire frames
// into hub events.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	addr string

	// closed is owned by the hub loop; set before the send channel closes.
	closed bool

	maxMessageSize int64
	limiter        *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient wraps a WebSocket connection for the hub. The identifier must
// be unique per connection; the handler assigns a fresh UUID.
func NewClient(conn *websocket.Conn, hub *Hub, id, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendBufSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval, hub.registry.clock),
		rateLimit:      cfg.RateLimit,
	}
}

// trySend queues a message for delivery without blocking. Called only from
// the hub loop, which also owns the closed flag.
func (c *Client) trySend(msg []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// reject closes a connection whose registration was refused. The client was
// never added to the hub, so no pumps are running and no disconnect event
// follows.
func (c *Client) reject() {
	c.closed = true
	if c.conn == nil {
		return
	}
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session id already in use")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.conn.Close()
}

func (c *Client) readPump() {
	defer func() {
		// The hub may already be shut down; never block on a dead loop.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("closing connection in read pump", "addr", c.addr, "error", err)
		}
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("setting read deadline", "addr", c.addr, "error", err)
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

		if c.limiter != nil && !c.limiter.allow() {
			slog.Warn("rate limit exceeded; discarding frame",
				"addr", c.addr, "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
			metricRejectedFrames.Inc()
			continue
		}

		c.processFrame(raw)
	}
}

// processFrame decodes one inbound envelope. Malformed frames are rejected
// here and never reach the hub; the session stays connected either way.
func (c *Client) processFrame(raw []byte) bool {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("invalid frame", "addr", c.addr, "error", err)
		metricRejectedFrames.Inc()
		return false
	}

	switch env.Event {
	case EventLocationAcquired:
		loc, err := decodeLocationAcquired(env.Data)
		if err != nil {
			slog.Warn("rejecting location report", "addr", c.addr, "error", err)
			metricRejectedFrames.Inc()
			return false
		}
		select {
		case c.hub.reports <- locationReport{sender: c, loc: loc}:
		case <-c.hub.ctx.Done():
		}
		return true

	default:
		slog.Warn("unknown event", "event", env.Event, "addr", c.addr)
		metricRejectedFrames.Inc()
		return false
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		slog.Warn("frame exceeded maximum size", "addr", c.addr, "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		slog.Debug("client disconnected", "addr", c.addr, "error", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		slog.Debug("connection closed", "addr", c.addr, "error", err)
	default:
		slog.Warn("websocket read error", "addr", c.addr, "error", err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("closing connection in write pump", "addr", c.addr, "error", err)
		}
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Warn("setting write deadline", "addr", c.addr, "error", err)
				return
			}
			if !ok {
				// Hub removed the client or is shutting down.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.writeMessage(msg) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Warn("setting write deadline for ping", "addr", c.addr, "error", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes msg plus any messages already queued behind it, each
// as its own text frame.
func (c *Client) writeMessage(msg []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		slog.Debug("write failed", "addr", c.addr, "error", err)
		return false
	}

	for i := len(c.send); i > 0; i-- {
		queued, ok := <-c.send
		if !ok {
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return false
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
			slog.Debug("write failed", "addr", c.addr, "error", err)
			return false
		}
	}
	return true
}

// isExpectedCloseError reports whether an error is routine fallout of a
// connection teardown.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
