// Package websocket pushes snapshots to browsers and watch clients over
// gorilla/websocket, and reads them back on the client side.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torosent/kvscope/internal/clientmetrics"
)

const (
	DefaultWriteTimeout = 5 * time.Second
	DefaultPingInterval = 15 * time.Second
)

// Message represents a WebSocket message received by a Client.
type Message struct {
	Type int // websocket.TextMessage or websocket.BinaryMessage
	Data []byte
}

// ServerConfig tunes Stream.
type ServerConfig struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
}

func (c ServerConfig) normalize() ServerConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
	return c
}

// Stream upgrades the request and writes every value from in as a JSON text
// message. It returns when ctx is done, in is closed, or the peer goes away.
// The returned snapshot describes what was sent.
func Stream[T any](ctx context.Context, w http.ResponseWriter, r *http.Request, in <-chan T, cfg ServerConfig) (clientmetrics.Snapshot, error) {
	cfg = cfg.normalize()
	upgrader := websocket.Upgrader{CheckOrigin: cfg.CheckOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		return clientmetrics.Snapshot{}, fmt.Errorf("websocket upgrade: %w", err)
	}
	defer conn.Close()

	metrics := clientmetrics.New()
	metrics.MarkConnected()

	// The read pump handles control frames and notices when the peer leaves.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(cfg.PingInterval)
	defer ping.Stop()

	closeWith := func(code int) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(cfg.WriteTimeout))
	}

	for {
		select {
		case <-ctx.Done():
			closeWith(websocket.CloseGoingAway)
			return metrics.Snapshot(), nil
		case <-gone:
			return metrics.Snapshot(), nil
		case v, ok := <-in:
			if !ok {
				closeWith(websocket.CloseNormalClosure)
				return metrics.Snapshot(), nil
			}
			data, err := json.Marshal(v)
			if err != nil {
				metrics.IncrementErrors()
				return metrics.Snapshot(), fmt.Errorf("encode message: %w", err)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				metrics.IncrementErrors()
				return metrics.Snapshot(), fmt.Errorf("write message: %w", err)
			}
			metrics.Observe(len(data))
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteTimeout)); err != nil {
				metrics.IncrementErrors()
				return metrics.Snapshot(), fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

// Client represents a WebSocket client connection.
type Client struct {
	url            string
	headers        http.Header
	dialer         *websocket.Dialer
	maxMessageSize int64
	conn           *websocket.Conn
	mu             sync.Mutex
	metrics        *clientmetrics.Counters
}

// Config configures the WebSocket client behavior.
type Config struct {
	URL              string
	Headers          http.Header
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
}

// NewClient creates a new WebSocket client with the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}

	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 4 * 1024 * 1024 // snapshots with a full feed run to a few hundred KB
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	return &Client{
		url:            cfg.URL,
		headers:        cfg.Headers,
		dialer:         dialer,
		maxMessageSize: cfg.MaxMessageSize,
		metrics:        clientmetrics.New(),
	}
}

// Connect establishes a WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.headers)
	if err != nil {
		c.metrics.IncrementErrors()
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	conn.SetReadLimit(c.maxMessageSize)

	c.conn = conn
	c.metrics.MarkConnected()

	return nil
}

// ErrClosedByPeer is returned by ReceiveMessage after a normal close frame.
var ErrClosedByPeer = errors.New("websocket: closed by peer")

// ReceiveMessage reads a message from the WebSocket connection. The read
// deadline follows ctx's deadline when it has one.
func (c *Client) ReceiveMessage(ctx context.Context) (Message, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return Message{}, fmt.Errorf("not connected")
	}

	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Message{}, ErrClosedByPeer
		}
		c.metrics.IncrementErrors()
		return Message{}, fmt.Errorf("read message: %w", err)
	}

	c.metrics.Observe(len(data))
	return Message{Type: msgType, Data: data}, nil
}

// ReceiveJSON reads the next message and decodes it into v.
func (c *Client) ReceiveJSON(ctx context.Context, v any) error {
	msg, err := c.ReceiveMessage(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.metrics.IncrementErrors()
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// Close closes the WebSocket connection gracefully.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second),
	)

	closeErr := c.conn.Close()
	c.conn = nil
	c.metrics.Reset()

	if err != nil {
		return err
	}

	return closeErr
}

// Metrics returns the traffic received so far.
func (c *Client) Metrics() clientmetrics.Snapshot {
	return c.metrics.Snapshot()
}
