package transport

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Push errors. A full queue and a closed client are distinct conditions:
// the first is backpressure, the second is terminal.
var (
	ErrSendQueueFull = errors.New("send queue full")
	ErrClientClosed  = errors.New("client closed")
)

// Overflow policies for a full outbound queue.
const (
	OverflowDrop       = "drop"
	OverflowDisconnect = "disconnect"
)

// Config holds transport tuning.
type Config struct {
	QueueSize      int           // Outbound queue capacity per connection
	Overflow       string        // OverflowDrop or OverflowDisconnect
	WriteWait      time.Duration // Write deadline per frame
	PongWait       time.Duration // Read deadline; reset on pong
	PingPeriod     time.Duration // Ping interval; must be < PongWait
	MaxMessageSize int64         // Inbound frame size limit
}

// DefaultConfig returns defaults mirroring common gorilla/websocket usage.
func DefaultConfig() Config {
	return Config{
		QueueSize:      256,
		Overflow:       OverflowDrop,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// Client is one accepted WebSocket link. It implements registry.Pusher;
// the core sees nothing of it beyond Push and Close.
type Client struct {
	cfg    Config
	conn   *websocket.Conn
	logger *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// newClient wraps an upgraded connection.
func newClient(cfg Config, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Push enqueues one frame without blocking. A full queue is handled per
// the overflow policy: drop the frame, or disconnect the whole client so
// it can reconnect and resync from history.
func (c *Client) Push(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
	}

	if c.cfg.Overflow == OverflowDisconnect {
		c.logger.Warn("send queue full, disconnecting laggard")
		c.Close()
		return ErrSendQueueFull
	}
	c.logger.Warn("send queue full, dropping frame")
	return ErrSendQueueFull
}

// Close signals both pumps to stop. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// writePump drains the outbound queue onto the socket and keeps the
// connection alive with pings. Runs until Close or a write error.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
