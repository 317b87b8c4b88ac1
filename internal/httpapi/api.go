// Package httpapi exposes the read-only query surface over HTTP: active
// rooms with member counts, active connection identities, and paged
// message history. It only reads from the core, never mutates it.
package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pampa/chatd/internal/model"
	"github.com/pampa/chatd/internal/session"
)

// maxHistoryLimit caps a single history page.
const maxHistoryLimit = 500

// API serves the read-only endpoints.
type API struct {
	coord  *session.Coordinator
	logger *slog.Logger
}

// New creates the API over a coordinator.
func New(coord *session.Coordinator, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{coord: coord, logger: logger}
}

// Mount attaches the endpoints under /api.
func (a *API) Mount(r gin.IRouter) {
	g := r.Group("/api")
	g.GET("/rooms", a.listRooms)
	g.GET("/connections", a.listConnections)
	g.GET("/rooms/:room/history", a.roomHistory)
}

func (a *API) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": a.coord.Directory().AllRooms()})
}

func (a *API) listConnections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connections": a.coord.Registry().ListActive()})
}

func (a *API) roomHistory(c *gin.Context) {
	roomID := c.Param("room")

	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil || since < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since cursor"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	msgs, err := a.coord.History().Query(c.Request.Context(), roomID, since, limit)
	if err != nil {
		a.logger.Error("history query failed", "room", roomID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}

	if msgs == nil {
		msgs = []model.Message{}
	}

	next := since
	if len(msgs) > 0 {
		next = msgs[len(msgs)-1].Seq
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id":  roomID,
		"messages": msgs,
		"next":     next,
	})
}
