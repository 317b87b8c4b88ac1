package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pampa/chatd/internal/session"
)

// Server upgrades HTTP requests to WebSocket links and binds each one to a
// session in the coordinator.
type Server struct {
	cfg      Config
	coord    *session.Coordinator
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a transport server over the coordinator.
func NewServer(cfg Config, coord *session.Coordinator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		coord:  coord,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin policy is the edge proxy's concern.
				return true
			},
		},
	}
}

// Handle is the gin handler for the /ws endpoint. The client's display
// identity comes from the username query parameter.
func (s *Server) Handle(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(s.cfg, conn, s.logger)

	handle, err := s.coord.OnConnect(c.Query("username"), client)
	if err != nil {
		s.logger.Warn("connect rejected", "error", err)
		conn.Close()
		return
	}

	go client.writePump()
	go s.readPump(client, handle)
}

// readPump feeds inbound frames to the coordinator until the link dies,
// then cascades the disconnect.
func (s *Server) readPump(client *Client, handle uuid.UUID) {
	ctx := context.Background()
	logger := s.logger.With("handle", handle)

	defer func() {
		s.coord.OnDisconnect(ctx, handle)
		client.Close()
		client.conn.Close()
	}()

	client.conn.SetReadLimit(s.cfg.MaxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		return nil
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", "error", err)
			}
			return
		}

		if err := s.coord.OnMessage(ctx, handle, data); err != nil {
			// Already reported to the client as an error frame.
			logger.Debug("frame rejected", "error", err)
		}
	}
}
