package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pampa/chatd/internal/history"
	"github.com/pampa/chatd/internal/registry"
	"github.com/pampa/chatd/internal/room"
	"github.com/pampa/chatd/internal/router"
)

// State is a connection's lifecycle state.
type State string

const (
	StateConnected    State = "connected" // Registered, never joined a room
	StateIdle         State = "idle"      // Left every room it had joined
	StateInRoom       State = "in_room"   // Member of at least one room
	StateDisconnected State = "disconnected"
)

// Config holds coordinator policy.
type Config struct {
	// ReplayLimit is how many trailing messages are replayed to a
	// connection when it joins a room. 0 disables replay.
	ReplayLimit int
}

// DefaultConfig returns default policy.
func DefaultConfig() Config {
	return Config{ReplayLimit: 50}
}

// sessionState tracks the coordinator's view of one connection.
type sessionState struct {
	state State
	rooms map[string]struct{}
}

// Coordinator owns the components of the coordination core and exposes the
// transport boundary. Lower components never hold references back to it.
type Coordinator struct {
	cfg    Config
	reg    *registry.Registry
	dir    *room.Directory
	router *router.Router
	store  history.Store
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionState
}

// New wires a Coordinator over its owned components. The router is
// registered as the directory's notice handler here, so membership notices
// flow through the broadcast path without a stored back-pointer.
func New(cfg Config, reg *registry.Registry, dir *room.Directory, rt *router.Router, store history.Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	dir.SetNoticeHandler(rt)
	dir.SetSeqSource(store)
	return &Coordinator{
		cfg:      cfg,
		reg:      reg,
		dir:      dir,
		router:   rt,
		store:    store,
		logger:   logger,
		sessions: make(map[uuid.UUID]*sessionState),
	}
}

// OnConnect registers a new client link and returns its handle.
func (c *Coordinator) OnConnect(identity string, p registry.Pusher) (uuid.UUID, error) {
	if identity == "" {
		identity = "anonymous"
	}

	handle := uuid.New()
	if _, err := c.reg.Register(handle, identity, p); err != nil {
		return uuid.Nil, err
	}

	c.mu.Lock()
	c.sessions[handle] = &sessionState{
		state: StateConnected,
		rooms: make(map[string]struct{}),
	}
	c.mu.Unlock()

	return handle, nil
}

// OnMessage parses one inbound frame and dispatches it. Protocol and
// validation failures are pushed back to the client as error frames and
// returned for telemetry; they never disturb other connections.
func (c *Coordinator) OnMessage(ctx context.Context, handle uuid.UUID, raw []byte) error {
	if !c.alive(handle) {
		return registry.ErrUnknownConnection
	}

	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.pushTo(handle, encodeError("malformed frame"))
		return fmt.Errorf("malformed frame: %w", err)
	}

	switch f.Type {
	case frameJoin:
		return c.handleJoin(ctx, handle, f.RoomID)
	case frameLeave:
		return c.handleLeave(ctx, handle, f.RoomID)
	case frameSend:
		return c.handleSend(ctx, handle, f.RoomID, f.Body)
	case frameHistory:
		return c.handleHistory(ctx, handle, f.RoomID, f.Since, f.Limit)
	default:
		c.pushTo(handle, encodeError("unknown frame type: "+f.Type))
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
}

// OnDisconnect cascades cleanup for a closed link: every room membership
// is released (emitting leave notices), then the registry entry is
// removed. Idempotent; the session ends in the terminal state.
func (c *Coordinator) OnDisconnect(ctx context.Context, handle uuid.UUID) {
	c.mu.Lock()
	st, ok := c.sessions[handle]
	if ok {
		st.state = StateDisconnected
		delete(c.sessions, handle)
	}
	c.mu.Unlock()

	// LeaveAll before Unregister: leave notices resolve the identity
	// through the registry.
	left := c.dir.LeaveAll(ctx, handle)
	c.reg.Unregister(handle)

	if ok {
		c.logger.Info("session ended", "handle", handle, "rooms_left", len(left))
	}
}

// SessionState returns the coordinator's view of a handle. Unknown handles
// report Disconnected, the terminal state.
func (c *Coordinator) SessionState(handle uuid.UUID) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.sessions[handle]; ok {
		return st.state
	}
	return StateDisconnected
}

// Registry exposes the connection registry to read-only query surfaces.
func (c *Coordinator) Registry() *registry.Registry { return c.reg }

// Directory exposes the room directory to read-only query surfaces.
func (c *Coordinator) Directory() *room.Directory { return c.dir }

// History exposes the message log to read-only query surfaces.
func (c *Coordinator) History() history.Store { return c.store }

func (c *Coordinator) handleJoin(ctx context.Context, handle uuid.UUID, roomID string) error {
	if roomID == "" {
		c.pushTo(handle, encodeError("join requires room_id"))
		return fmt.Errorf("join without room_id")
	}

	m, err := c.dir.Join(ctx, roomID, handle)
	if err != nil {
		c.pushTo(handle, encodeError(err.Error()))
		return err
	}

	c.mu.Lock()
	if st, ok := c.sessions[handle]; ok {
		st.rooms[roomID] = struct{}{}
		st.state = StateInRoom
	}
	c.mu.Unlock()

	c.pushTo(handle, encodeJoined(roomID, c.memberIdentities(roomID)))

	if !m.Rejoined && c.cfg.ReplayLimit > 0 {
		c.replayHistory(ctx, handle, roomID)
	}
	return nil
}

func (c *Coordinator) handleLeave(ctx context.Context, handle uuid.UUID, roomID string) error {
	if roomID == "" {
		c.pushTo(handle, encodeError("leave requires room_id"))
		return fmt.Errorf("leave without room_id")
	}

	if err := c.dir.Leave(ctx, roomID, handle); err != nil {
		return err
	}

	c.mu.Lock()
	if st, ok := c.sessions[handle]; ok {
		delete(st.rooms, roomID)
		if len(st.rooms) == 0 && st.state == StateInRoom {
			st.state = StateIdle
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) handleSend(ctx context.Context, handle uuid.UUID, roomID, body string) error {
	if _, err := c.router.Send(ctx, roomID, handle, body); err != nil {
		c.pushTo(handle, encodeError(err.Error()))
		return err
	}
	return nil
}

func (c *Coordinator) handleHistory(ctx context.Context, handle uuid.UUID, roomID string, since int64, limit int) error {
	msgs, err := c.store.Query(ctx, roomID, since, limit)
	if err != nil {
		c.pushTo(handle, encodeError("history unavailable"))
		return fmt.Errorf("history query: %w", err)
	}
	c.pushTo(handle, encodeHistory(roomID, msgs))
	return nil
}

// replayHistory pushes the room's trailing messages to a fresh joiner as
// an explicit history frame. Late joiners never receive earlier messages
// through the live fan-out path.
func (c *Coordinator) replayHistory(ctx context.Context, handle uuid.UUID, roomID string) {
	last, err := c.store.LastSeq(ctx, roomID)
	if err != nil {
		c.logger.Warn("history replay skipped", "room", roomID, "error", err)
		return
	}

	since := last - int64(c.cfg.ReplayLimit)
	if since < 0 {
		since = 0
	}

	msgs, err := c.store.Query(ctx, roomID, since, c.cfg.ReplayLimit)
	if err != nil {
		c.logger.Warn("history replay skipped", "room", roomID, "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}
	c.pushTo(handle, encodeHistory(roomID, msgs))
}

// memberIdentities resolves a room's member handles to display identities.
func (c *Coordinator) memberIdentities(roomID string) []string {
	handles, err := c.dir.Members(roomID)
	if err != nil {
		return nil
	}

	identities := make([]string, 0, len(handles))
	for _, h := range handles {
		if conn, err := c.reg.Lookup(h); err == nil {
			identities = append(identities, conn.Identity)
		}
	}
	sort.Strings(identities)
	return identities
}

// alive reports whether the handle has a live, non-terminal session.
func (c *Coordinator) alive(handle uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[handle]
	return ok && st.state != StateDisconnected
}

// pushTo delivers a frame to one connection, swallowing delivery errors:
// a broken transport is cleaned up by its own disconnect path.
func (c *Coordinator) pushTo(handle uuid.UUID, data []byte) {
	conn, err := c.reg.Lookup(handle)
	if err != nil {
		return
	}
	if err := conn.Push(data); err != nil {
		c.logger.Warn("push failed", "handle", handle, "error", err)
	}
}
