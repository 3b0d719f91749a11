package channel

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trafficpulse/livemap/internal/domain"
)

// Conn is one open connection to the event source. Receive blocks until a
// frame arrives or the connection dies; Send and Close are safe to call
// concurrently with it.
type Conn interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Transport opens connections. It carries no retry logic; open failures
// propagate to the caller immediately.
type Transport interface {
	Open(ctx context.Context, endpoint string) (Conn, error)
}

const defaultWriteTimeout = 5 * time.Second

// WebSocket is the production Transport over gorilla/websocket.
type WebSocket struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

// NewWebSocket creates a websocket transport with default timeouts.
func NewWebSocket() *WebSocket {
	return &WebSocket{
		dialer:       websocket.DefaultDialer,
		writeTimeout: defaultWriteTimeout,
	}
}

// Open dials the endpoint. The context bounds the handshake.
func (t *WebSocket) Open(ctx context.Context, endpoint string) (Conn, error) {
	conn, _, err := t.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, &domain.ConnectError{Endpoint: endpoint, Err: err}
	}
	return &wsConn{conn: conn, writeTimeout: t.writeTimeout}, nil
}

// wsConn serializes writes; gorilla allows one concurrent writer only.
type wsConn struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &domain.TransportError{Op: "send", Err: err}
	}
	return nil
}

func (c *wsConn) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, &domain.TransportError{Op: "receive", Err: err}
	}
	return data, nil
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
