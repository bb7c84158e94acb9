package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/weiawesome/emergency-chat-relay/internal/config"
	"github.com/weiawesome/emergency-chat-relay/pkg/log"
)

var (
	ErrClosed     = errors.New("connection closed")
	ErrBufferFull = errors.New("send buffer full")
)

const defaultSendBuffer = 256

// State of a relay connection.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateJoined:
		return "JOINED"
	default:
		return "CLOSED"
	}
}

// Client is one participant's websocket connection. It satisfies
// registry.Handle.
type Client struct {
	id            string
	emergencyID   string
	participantID string

	conn   *websocket.Conn
	send   chan []byte
	config config.WebSocketConfig
	ctx    context.Context
	state  atomic.Int32

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

func NewClient(ctx context.Context, id, emergencyID, participantID string, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	size := cfg.SendBuffer
	if size <= 0 {
		size = defaultSendBuffer
	}
	return &Client{
		id:            id,
		emergencyID:   emergencyID,
		participantID: participantID,
		conn:          conn,
		send:          make(chan []byte, size),
		config:        cfg,
		ctx:           log.WithConnection(ctx, id, emergencyID, participantID),
	}
}

func (c *Client) ID() string            { return c.id }
func (c *Client) EmergencyID() string   { return c.emergencyID }
func (c *Client) ParticipantID() string { return c.participantID }

// Context carries the connection-scoped logger.
func (c *Client) Context() context.Context {
	return c.ctx
}

func (c *Client) State() State {
	return State(c.state.Load())
}

// MarkJoined records that the client has been registered.
func (c *Client) MarkJoined() {
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateJoined))
}

// Send queues payload without blocking.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		l := log.Ctx(c.ctx)
		l.Warn().Msg("send buffer full, dropping frame")
		return ErrBufferFull
	}
}

// Close asks the write pump to flush queued frames, send a close frame with
// code and reason, and drop the connection. Only the first call counts.
func (c *Client) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	c.state.Store(int32(StateClosed))
	close(c.send)
	return nil
}

// ReadPump delivers inbound frames to handler until the connection fails.
// onClose runs exactly once on every exit path.
func (c *Client) ReadPump(handler func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		onClose(c)
		c.Close(websocket.CloseNormalClosure, "")
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l := log.Ctx(c.ctx)
				l.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.mu.Lock()
				frame := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
				c.mu.Unlock()
				c.conn.WriteMessage(websocket.CloseMessage, frame)
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Reject closes a connection that never joined.
func Reject(conn *websocket.Conn, code int, reason string, writeWait time.Duration) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}
