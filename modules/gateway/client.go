package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// Connection states
const (
	stateOpen int32 = iota
	stateClosing
	stateClosed
)

// wsConn is the part of *websocket.Conn a Client uses.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
	Close() error
}

// ClientOptions tunes heartbeat and buffering of a Client.
type ClientOptions struct {
	HeartbeatInterval time.Duration
	WriteWait         time.Duration
	SendBuffer        int
	MaxFrameSize      int64
}

// DefaultClientOptions returns the production defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		HeartbeatInterval: 30 * time.Second,
		WriteWait:         10 * time.Second,
		SendBuffer:        256,
		MaxFrameSize:      64 * 1024,
	}
}

func (o ClientOptions) withDefaults() ClientOptions {
	d := DefaultClientOptions()
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = d.HeartbeatInterval
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = d.MaxFrameSize
	}
	return o
}

// pongWait is how long a connection may stay silent before it is dropped.
func (o ClientOptions) pongWait() time.Duration {
	return 2 * o.HeartbeatInterval
}

// Client is one authenticated realtime connection. Outbound frames go through
// a bounded queue drained by a single writer goroutine, so Send never blocks.
type Client struct {
	id     string
	userID int64
	conn   wsConn
	opts   ClientOptions
	logger types.Logger

	send      chan []byte
	done      chan struct{}
	pumpDone  chan struct{}
	closeOnce sync.Once

	state atomic.Int32
}

// NewClient wraps conn for userID.
func NewClient(conn wsConn, userID int64, opts ClientOptions, logger types.Logger) *Client {
	opts = opts.withDefaults()
	return &Client{
		id:       uuid.New().String(),
		userID:   userID,
		conn:     conn,
		opts:     opts,
		logger:   logger,
		send:     make(chan []byte, opts.SendBuffer),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// IsOpen reports whether the client still accepts frames.
func (c *Client) IsOpen() bool { return c.state.Load() == stateOpen }

// Send enqueues frame. A client whose queue is full is closed as a slow
// consumer and the frame is dropped.
func (c *Client) Send(frame []byte) bool {
	if !c.IsOpen() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn("Send queue full, closing slow client", "userID", c.userID, "connID", c.id)
		_ = c.Close()
		return false
	}
}

// Close stops the client. The writer sends a close frame and releases the socket.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.state.CompareAndSwap(stateOpen, stateClosing)
		close(c.done)
	})
	return nil
}

// Run starts the writer and reads frames until the connection fails, the
// heartbeat lapses or the client is closed. Frames are passed to handle one
// at a time in arrival order. Run returns after the writer has exited.
func (c *Client) Run(handle func(frame []byte)) {
	go c.writePump()

	c.conn.SetReadLimit(c.opts.MaxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("WebSocket read error", "userID", c.userID, "connID", c.id, "error", err)
			}
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.pongWait()))
		handle(data)
	}

	_ = c.Close()
	<-c.pumpDone
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.state.Store(stateClosed)
		close(c.pumpDone)
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("WebSocket write failed", "userID", c.userID, "connID", c.id, "error", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait),
			)
			return
		}
	}
}
