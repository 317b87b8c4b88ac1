package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind classifies a chat event.
type MessageKind string

const (
	KindChat   MessageKind = "chat"   // User-authored text
	KindJoin   MessageKind = "join"   // Membership notice: a connection joined
	KindLeave  MessageKind = "leave"  // Membership notice: a connection left
	KindSystem MessageKind = "system" // Coordinator-generated notice
)

// Message is one chat event. Immutable once created. Chat messages are
// appended to history and never mutated or deleted; membership notices are
// broadcast live only.
type Message struct {
	ID     uuid.UUID   `json:"id"`
	RoomID string      `json:"room_id"`
	Seq    int64       `json:"seq,omitempty"` // Assigned to chat messages only; notices carry none
	Kind   MessageKind `json:"kind"`
	Sender string      `json:"sender"`           // Display identity of the author
	Handle uuid.UUID   `json:"handle,omitempty"` // Connection that produced it (zero for system)
	Body   string      `json:"body"`
	SentAt time.Time   `json:"sent_at"`
}

// RoomSummary is the read-only view of a room exposed to query surfaces.
type RoomSummary struct {
	ID         string    `json:"id"`
	Members    int       `json:"members"`
	MaxMembers int       `json:"max_members,omitempty"` // 0 = unlimited
	CreatedAt  time.Time `json:"created_at"`
}

// ConnectionInfo is the read-only view of a live connection.
type ConnectionInfo struct {
	Handle      uuid.UUID `json:"handle"`
	Identity    string    `json:"identity"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Outbound frame types pushed to connections. The transport layer never
// interprets these; they are part of the client-facing wire protocol.
const (
	FrameMessage    = "message"
	FrameUserJoined = "user_joined"
	FrameUserLeft   = "user_left"
	FrameSystem     = "system"
	FrameHistory    = "message_history"
	FrameJoined     = "joined"
	FrameError      = "error"
)
