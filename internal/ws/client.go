package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vircadia/world-realtime-core/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1MiB, bounding the "over-size frame" protocol violation
	sendBufferSize = 256     // matches spec.md §4.4's default outbound queue capacity
)

// Handler reacts to decoded frames for one connection. Implemented at the
// transport wiring layer so ws stays free of auth/dispatch/fanout imports.
type Handler interface {
	OnHeartbeat(ctx context.Context)
	OnConfigRequest(ctx context.Context) ConfigResponseFrame
	OnQuery(ctx context.Context, req QueryFrame) QueryResponseFrame
	OnSubscribe(ctx context.Context, channel string) SubscribeResponseFrame
	OnUnsubscribe(ctx context.Context, channel string) UnsubscribeResponseFrame
	OnClose()
}

// Client is one live WebSocket connection bound to exactly one session, per
// spec.md §3's Connection entity. Its read/write pumps are grounded on the
// teacher's internal/websocket/hub.go Client: a 60s read deadline reset on
// every pong, a 54s ping ticker (nine tenths of the read deadline), and
// batched writes that drain every frame queued at wakeup, each written as
// its own WebSocket message.
type Client struct {
	SessionID string

	conn    *websocket.Conn
	send    chan []byte
	handler Handler

	closeOnce closeOnceState
}

type closeOnceState struct {
	done bool
}

// NewClient wraps an upgraded connection.
func NewClient(sessionID string, conn *websocket.Conn, handler Handler) *Client {
	return &Client{
		SessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		handler:   handler,
	}
}

// Enqueue attempts a non-blocking send, per spec.md §4.4/§5's "producers
// enqueue under a non-blocking attempt that may fail to Backpressure."
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// CloseWithReason closes the underlying connection with a WebSocket close
// frame, satisfying auth.Closer. Safe to call multiple times.
func (c *Client) CloseWithReason(code int, reason string) {
	if c.closeOnce.done {
		return
	}
	c.closeOnce.done = true
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}

// Run drives both pumps and blocks until the connection closes. Callers
// should invoke Run in its own goroutine per spec.md §5 ("one task per
// WebSocket connection (read); one task ... (write)").
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()
	c.readPump(ctx)
	<-done
	c.handler.OnClose()
}

func (c *Client) readPump(ctx context.Context) {
	log := logging.Transport()
	defer close(c.send)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if !c.dispatchFrame(ctx, raw) {
			c.sendError("malformed or unknown frame")
			c.CloseWithReason(1008, "Protocol violation")
			return
		}
		log.Debug().Str("session_id", c.SessionID).Msg("frame processed")
	}
}

func (c *Client) sendError(message string) {
	c.Enqueue(marshal(ErrorFrame{Type: FrameError, Message: message}))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

			// Batch any frames queued since, draining into this same
			// wakeup, grounded on hub.go's writePump batching behavior.
			n := len(c.send)
			for i := 0; i < n; i++ {
				extra, ok := <-c.send
				if !ok {
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, extra); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
