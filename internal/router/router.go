package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pampa/chatd/internal/history"
	"github.com/pampa/chatd/internal/model"
	"github.com/pampa/chatd/internal/registry"
	"github.com/pampa/chatd/internal/room"
)

// ErrNotAMember is returned when a sender is not joined to the target room.
var ErrNotAMember = errors.New("not a member of room")

// Config holds router policy.
type Config struct {
	// EchoToSender delivers a chat message back to its sender, so the
	// sender observes its own message with the authoritative sequence
	// number.
	EchoToSender bool
}

// DefaultConfig returns default policy.
func DefaultConfig() Config {
	return Config{EchoToSender: true}
}

// Stats holds router counters.
type Stats struct {
	Sent             int64 // Chat messages accepted
	Notices          int64 // Join/leave notices broadcast
	Delivered        int64 // Per-recipient successful pushes
	DeliveryFailures int64 // Per-recipient failed pushes (telemetry only)
	AppendFailures   int64 // History appends that failed
}

// Router validates, sequences, persists, and fans out messages.
type Router struct {
	cfg    Config
	reg    *registry.Registry
	dir    *room.Directory
	store  history.Store
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a Router. The caller wires it into the directory with
// dir.SetNoticeHandler(r) so membership notices share the broadcast path
// with chat messages.
func New(cfg Config, reg *registry.Registry, dir *room.Directory, store history.Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:    cfg,
		reg:    reg,
		dir:    dir,
		store:  store,
		logger: logger,
	}
}

// Send validates, sequences, persists, and fans out one chat message.
// Returns the message as persisted, sequence number included.
func (r *Router) Send(ctx context.Context, roomID string, sender uuid.UUID, body string) (model.Message, error) {
	conn, err := r.reg.Lookup(sender)
	if err != nil {
		return model.Message{}, err
	}

	var msg model.Message
	err = r.dir.WithRoom(roomID, func(v *room.View) error {
		if !v.Contains(sender) {
			return ErrNotAMember
		}

		msg = model.Message{
			ID:     uuid.New(),
			RoomID: roomID,
			Seq:    v.NextSeq(),
			Kind:   model.KindChat,
			Sender: conn.Identity,
			Handle: sender,
			Body:   body,
			SentAt: time.Now().UTC(),
		}

		if err := r.store.Append(ctx, msg); err != nil {
			v.UndoSeq()
			r.mu.Lock()
			r.stats.AppendFailures++
			r.mu.Unlock()
			return fmt.Errorf("append history: %w", err)
		}

		exclude := uuid.Nil
		if !r.cfg.EchoToSender {
			exclude = sender
		}
		r.fanOut(v.Members(), msg, exclude)
		return nil
	})
	if err != nil {
		return model.Message{}, err
	}

	r.mu.Lock()
	r.stats.Sent++
	r.mu.Unlock()
	return msg, nil
}

// HandleNotice broadcasts a membership notice. Invoked by the room
// directory while the room lock is held, which totally orders notices
// against concurrent sends in the same room. Notices are transient: they
// carry no sequence number and never enter history, so chat sequence
// numbers stay dense from 1.
func (r *Router) HandleNotice(ctx context.Context, v *room.View, n Notice) {
	var body string
	switch n.Kind {
	case model.KindJoin:
		body = n.Identity + " joined the room"
	case model.KindLeave:
		body = n.Identity + " left the room"
	default:
		body = n.Identity
	}

	msg := model.Message{
		ID:     uuid.New(),
		RoomID: n.RoomID,
		Kind:   n.Kind,
		Sender: n.Identity,
		Handle: n.Handle,
		Body:   body,
		SentAt: n.At,
	}

	// The subject learns about its own join/leave from the session
	// coordinator; the notice goes to everyone else.
	r.fanOut(v.Members(), msg, n.Handle)

	r.mu.Lock()
	r.stats.Notices++
	r.mu.Unlock()
}

// Notice aliases the directory's notice type so callers only deal with
// one package on the send path.
type Notice = room.Notice

// Stats returns current counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// fanOut pushes an encoded message to every member except exclude.
// Failures are isolated per recipient: counted, logged, never propagated.
func (r *Router) fanOut(members []uuid.UUID, msg model.Message, exclude uuid.UUID) {
	data, err := encodeFrame(msg)
	if err != nil {
		r.logger.Error("frame encode failed", "room", msg.RoomID, "seq", msg.Seq, "error", err)
		return
	}

	var delivered, failed int64
	for _, h := range members {
		if h == exclude {
			continue
		}

		conn, err := r.reg.Lookup(h)
		if err != nil {
			// Departed between snapshot and delivery; no retry.
			continue
		}

		if err := conn.Push(data); err != nil {
			failed++
			r.logger.Warn("delivery failed",
				"room", msg.RoomID,
				"seq", msg.Seq,
				"recipient", h,
				"error", err,
			)
			continue
		}
		delivered++
	}

	r.mu.Lock()
	r.stats.Delivered += delivered
	r.stats.DeliveryFailures += failed
	r.mu.Unlock()
}

// frame is the outbound wire envelope for routed messages.
type frame struct {
	Type    string        `json:"type"`
	Message model.Message `json:"message"`
}

// encodeFrame serializes a message with its client-facing frame type.
func encodeFrame(msg model.Message) ([]byte, error) {
	var typ string
	switch msg.Kind {
	case model.KindChat:
		typ = model.FrameMessage
	case model.KindJoin:
		typ = model.FrameUserJoined
	case model.KindLeave:
		typ = model.FrameUserLeft
	default:
		typ = model.FrameSystem
	}
	return json.Marshal(frame{Type: typ, Message: msg})
}
