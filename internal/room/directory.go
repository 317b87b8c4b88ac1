package room

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pampa/chatd/internal/model"
	"github.com/pampa/chatd/internal/registry"
)

// Errors
var (
	ErrUnknownRoom = errors.New("unknown room")
	ErrRoomFull    = errors.New("room is full")
)

// ConnSource answers liveness and identity questions about connections.
// Implemented by *registry.Registry.
type ConnSource interface {
	Active(handle uuid.UUID) bool
	Lookup(handle uuid.UUID) (*registry.Conn, error)
}

// Notice describes a membership change to broadcast to a room.
type Notice struct {
	RoomID   string
	Kind     model.MessageKind // KindJoin or KindLeave
	Identity string
	Handle   uuid.UUID
	At       time.Time
}

// NoticeHandler receives membership notices. The handler runs while the
// room's lock is held; the View is only valid for the duration of the call.
type NoticeHandler interface {
	HandleNotice(ctx context.Context, v *View, n Notice)
}

// NoticeHandlerFunc is a function adapter for NoticeHandler.
type NoticeHandlerFunc func(ctx context.Context, v *View, n Notice)

func (f NoticeHandlerFunc) HandleNotice(ctx context.Context, v *View, n Notice) {
	f(ctx, v, n)
}

// SeqSource seeds a new room's sequence counter from durable history, so
// sequence numbers keep increasing across process restarts.
type SeqSource interface {
	LastSeq(ctx context.Context, roomID string) (int64, error)
}

// Membership is the result of a successful join.
type Membership struct {
	RoomID   string
	Handle   uuid.UUID
	JoinedAt time.Time
	Members  int  // Member count after the join
	Rejoined bool // True if the handle was already a member (idempotent join)
}

// Config holds directory policy.
type Config struct {
	// ReclaimEmpty deletes a room when its membership drops to zero.
	// Seeded rooms are never reclaimed.
	ReclaimEmpty bool

	// MaxMembers caps membership for lazily created rooms. 0 = unlimited.
	MaxMembers int
}

// Seed declares a room that exists from startup and survives emptiness.
type Seed struct {
	ID         string
	MaxMembers int // 0 = unlimited
}

// state is the synchronized per-room record.
type state struct {
	id         string
	createdAt  time.Time
	maxMembers int
	seeded     bool

	mu        sync.Mutex
	members   map[uuid.UUID]struct{}
	seq       int64
	reclaimed bool
}

// Stats holds directory counters.
type Stats struct {
	Rooms     int
	Joins     int64
	Leaves    int64
	Reclaimed int64
}

// Directory tracks room existence and membership sets.
type Directory struct {
	cfg    Config
	conns  ConnSource
	seqs   SeqSource // may be nil
	logger *slog.Logger

	handler NoticeHandler // may be nil; set once during wiring

	mu    sync.RWMutex
	rooms map[string]*state

	statsMu   sync.Mutex
	joins     int64
	leaves    int64
	reclaimed int64
}

// New creates a Directory backed by the given connection source.
func New(cfg Config, conns ConnSource, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		cfg:    cfg,
		conns:  conns,
		logger: logger,
		rooms:  make(map[string]*state),
	}
}

// SetNoticeHandler wires the membership notice sink. Must be called before
// the directory receives traffic; the message router registers itself here
// so lower components never hold a reference to the coordinator.
func (d *Directory) SetNoticeHandler(h NoticeHandler) {
	d.handler = h
}

// SetSeqSource wires the durable sequence floor used when creating rooms.
func (d *Directory) SetSeqSource(s SeqSource) {
	d.seqs = s
}

// SeedRooms pre-creates persistent rooms. Called once at startup.
func (d *Directory) SeedRooms(ctx context.Context, seeds []Seed) error {
	for _, s := range seeds {
		st, created, err := d.getOrCreate(ctx, s.ID)
		if err != nil {
			return err
		}
		st.seeded = true
		if s.MaxMembers > 0 {
			st.maxMembers = s.MaxMembers
		}
		if created {
			d.logger.Info("room seeded", "room", s.ID, "max_members", s.MaxMembers)
		}
	}
	return nil
}

// Join adds a handle to a room, creating the room on first reference.
// Idempotent: joining a room twice reports Rejoined without double-counting
// and without emitting a second notice.
func (d *Directory) Join(ctx context.Context, roomID string, handle uuid.UUID) (Membership, error) {
	conn, err := d.conns.Lookup(handle)
	if err != nil {
		return Membership{}, registry.ErrUnknownConnection
	}

	for {
		st, _, err := d.getOrCreate(ctx, roomID)
		if err != nil {
			return Membership{}, err
		}

		st.mu.Lock()
		if st.reclaimed {
			// Lost a race with reclaim; the room table no longer holds
			// this state, so look it up again.
			st.mu.Unlock()
			continue
		}

		if _, ok := st.members[handle]; ok {
			m := Membership{
				RoomID:   roomID,
				Handle:   handle,
				JoinedAt: time.Now().UTC(),
				Members:  len(st.members),
				Rejoined: true,
			}
			st.mu.Unlock()
			return m, nil
		}

		if st.maxMembers > 0 && len(st.members) >= st.maxMembers {
			st.mu.Unlock()
			return Membership{}, ErrRoomFull
		}

		now := time.Now().UTC()
		st.members[handle] = struct{}{}
		m := Membership{
			RoomID:   roomID,
			Handle:   handle,
			JoinedAt: now,
			Members:  len(st.members),
		}

		d.notify(ctx, st, Notice{
			RoomID:   roomID,
			Kind:     model.KindJoin,
			Identity: conn.Identity,
			Handle:   handle,
			At:       now,
		})
		st.mu.Unlock()

		d.statsMu.Lock()
		d.joins++
		d.statsMu.Unlock()

		d.logger.Debug("joined room",
			"room", roomID,
			"handle", handle,
			"members", m.Members,
		)
		return m, nil
	}
}

// Leave removes a handle from a room. Idempotent: leaving a room not
// joined, or an unknown room, is a no-op.
func (d *Directory) Leave(ctx context.Context, roomID string, handle uuid.UUID) error {
	st := d.get(roomID)
	if st == nil {
		return nil
	}
	d.leave(ctx, st, handle)
	return nil
}

// LeaveAll removes a handle from every room it is in and returns the rooms
// actually left. Used for disconnect cascades.
func (d *Directory) LeaveAll(ctx context.Context, handle uuid.UUID) []string {
	d.mu.RLock()
	states := make([]*state, 0, len(d.rooms))
	for _, st := range d.rooms {
		states = append(states, st)
	}
	d.mu.RUnlock()

	var left []string
	for _, st := range states {
		if d.leave(ctx, st, handle) {
			left = append(left, st.id)
		}
	}
	sort.Strings(left)
	return left
}

// leave removes handle from st, emitting the notice to remaining members
// and reclaiming the room if it became empty. Reports whether the handle
// was a member.
func (d *Directory) leave(ctx context.Context, st *state, handle uuid.UUID) bool {
	identity := ""
	if conn, err := d.conns.Lookup(handle); err == nil {
		identity = conn.Identity
	}

	st.mu.Lock()
	if st.reclaimed {
		st.mu.Unlock()
		return false
	}
	if _, ok := st.members[handle]; !ok {
		st.mu.Unlock()
		return false
	}

	delete(st.members, handle)
	empty := len(st.members) == 0

	if !empty {
		d.notify(ctx, st, Notice{
			RoomID:   st.id,
			Kind:     model.KindLeave,
			Identity: identity,
			Handle:   handle,
			At:       time.Now().UTC(),
		})
	}
	st.mu.Unlock()

	d.statsMu.Lock()
	d.leaves++
	d.statsMu.Unlock()

	if empty && d.cfg.ReclaimEmpty && !st.seeded {
		d.reclaim(st)
	}

	d.logger.Debug("left room", "room", st.id, "handle", handle)
	return true
}

// Members returns a snapshot of the room's member handles.
func (d *Directory) Members(roomID string) ([]uuid.UUID, error) {
	st := d.get(roomID)
	if st == nil {
		return nil, ErrUnknownRoom
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.reclaimed {
		return nil, ErrUnknownRoom
	}
	members := make([]uuid.UUID, 0, len(st.members))
	for h := range st.members {
		members = append(members, h)
	}
	return members, nil
}

// AllRooms returns summaries of every live room, ordered by room ID.
func (d *Directory) AllRooms() []model.RoomSummary {
	d.mu.RLock()
	states := make([]*state, 0, len(d.rooms))
	for _, st := range d.rooms {
		states = append(states, st)
	}
	d.mu.RUnlock()

	summaries := make([]model.RoomSummary, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		if st.reclaimed {
			st.mu.Unlock()
			continue
		}
		summaries = append(summaries, model.RoomSummary{
			ID:         st.id,
			Members:    len(st.members),
			MaxMembers: st.maxMembers,
			CreatedAt:  st.createdAt,
		})
		st.mu.Unlock()
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

// WithRoom runs fn while holding the room's lock. This is the send path's
// serialization point: membership snapshot, sequence assignment, and the
// history append all happen inside fn, mutually exclusive with joins,
// leaves, and other sends on the same room.
func (d *Directory) WithRoom(roomID string, fn func(v *View) error) error {
	st := d.get(roomID)
	if st == nil {
		return ErrUnknownRoom
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.reclaimed {
		return ErrUnknownRoom
	}
	return fn(&View{st: st})
}

// Stats returns current counters.
func (d *Directory) Stats() Stats {
	d.mu.RLock()
	rooms := len(d.rooms)
	d.mu.RUnlock()

	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return Stats{
		Rooms:     rooms,
		Joins:     d.joins,
		Leaves:    d.leaves,
		Reclaimed: d.reclaimed,
	}
}

// get returns the live state for a room, or nil.
func (d *Directory) get(roomID string) *state {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rooms[roomID]
}

// getOrCreate returns the room's state, creating it lazily. The sequence
// counter of a new room starts above anything already in durable history.
func (d *Directory) getOrCreate(ctx context.Context, roomID string) (*state, bool, error) {
	d.mu.RLock()
	st := d.rooms[roomID]
	d.mu.RUnlock()
	if st != nil {
		return st, false, nil
	}

	var floor int64
	if d.seqs != nil {
		last, err := d.seqs.LastSeq(ctx, roomID)
		if err != nil {
			return nil, false, err
		}
		floor = last
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if st := d.rooms[roomID]; st != nil {
		return st, false, nil
	}

	st = &state{
		id:         roomID,
		createdAt:  time.Now().UTC(),
		maxMembers: d.cfg.MaxMembers,
		members:    make(map[uuid.UUID]struct{}),
		seq:        floor,
	}
	d.rooms[roomID] = st
	d.logger.Info("room created", "room", roomID, "seq_floor", floor)
	return st, true, nil
}

// reclaim deletes a room if it is still empty. Holding the table lock
// before re-checking keeps reclaim mutually exclusive with a concurrent
// join for the same room.
func (d *Directory) reclaim(st *state) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cur := d.rooms[st.id]; cur != st {
		return
	}

	st.mu.Lock()
	if len(st.members) > 0 {
		st.mu.Unlock()
		return
	}
	st.reclaimed = true
	st.mu.Unlock()

	delete(d.rooms, st.id)

	d.statsMu.Lock()
	d.reclaimed++
	d.statsMu.Unlock()

	d.logger.Info("room reclaimed", "room", st.id)
}

// notify hands a membership notice to the handler. Caller holds st.mu.
func (d *Directory) notify(ctx context.Context, st *state, n Notice) {
	if d.handler == nil {
		return
	}
	d.handler.HandleNotice(ctx, &View{st: st}, n)
}

// View is the locked view of one room passed to WithRoom callbacks and
// notice handlers. It must not escape the callback.
type View struct {
	st *state
}

// RoomID returns the room's identifier.
func (v *View) RoomID() string { return v.st.id }

// Contains reports whether the handle is a member.
func (v *View) Contains(handle uuid.UUID) bool {
	_, ok := v.st.members[handle]
	return ok
}

// NextSeq advances and returns the room's sequence counter.
func (v *View) NextSeq() int64 {
	v.st.seq++
	return v.st.seq
}

// UndoSeq rolls back the most recent NextSeq. Used when the history append
// fails, so the log never shows a gap.
func (v *View) UndoSeq() {
	v.st.seq--
}

// Members returns a snapshot of the current member handles.
func (v *View) Members() []uuid.UUID {
	members := make([]uuid.UUID, 0, len(v.st.members))
	for h := range v.st.members {
		members = append(members, h)
	}
	return members
}
