package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

type ClientOptions struct {
	SendBuffer       int
	SignalsPerSecond int
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.SignalsPerSecond <= 0 {
		o.SignalsPerSecond = 5
	}
	return o
}

// Client represents a WebSocket client connection
type Client struct {
	ID     string          // Unique connection ID
	UserID uuid.UUID       // Authenticated user ID
	Conn   *websocket.Conn // nil for clients that never touch the network
	Send   chan []byte     // Outbound queue, closed by Hub.Unregister

	// guarded by Hub.mu
	rooms      map[string]struct{}
	registered bool
	closed     bool

	signals *rate.Limiter
	writeMu sync.Mutex
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, userID uuid.UUID, opts ClientOptions) *Client {
	opts = opts.withDefaults()
	return &Client{
		ID:      uuid.New().String(),
		UserID:  userID,
		Conn:    conn,
		Send:    make(chan []byte, opts.SendBuffer),
		rooms:   make(map[string]struct{}),
		signals: rate.NewLimiter(rate.Limit(opts.SignalsPerSecond), opts.SignalsPerSecond*2),
	}
}

// AllowSignal reports whether another typing or reaction pulse frame may be relayed.
func (c *Client) AllowSignal() bool {
	return c.signals.Allow()
}

// enqueue must be called with Hub.mu held (read or write).
func (c *Client) enqueue(msg []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// WriteLoop drains the send queue to the socket until it is closed.
func (c *Client) WriteLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.Send:
			if !ok {
				c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadLoop hands every inbound text frame to handle until the peer goes away.
func (c *Client) ReadLoop(handle func(data []byte)) error {
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(data)
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}

// close closes the WebSocket connection
func (c *Client) close() {
	c.writeMu.Lock()
	_ = c.Conn.Close()
	c.writeMu.Unlock()
}
