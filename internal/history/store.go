package history

import (
	"context"
	"errors"

	"github.com/pampa/chatd/internal/model"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("history store closed")

// DefaultQueryLimit bounds a query when the caller asks for 0 or less.
const DefaultQueryLimit = 100

// Store is the append-only message log contract.
type Store interface {
	// Append persists one message. The message already carries its
	// room-scoped sequence number; Append is called under the room's
	// lock so durability is atomic with sequence assignment.
	Append(ctx context.Context, msg model.Message) error

	// Query returns up to limit messages of a room with seq > since, in
	// strictly increasing sequence order. limit <= 0 applies
	// DefaultQueryLimit. An unknown room yields an empty result, not an
	// error: history is a data sink, not a membership authority.
	Query(ctx context.Context, roomID string, since int64, limit int) ([]model.Message, error)

	// LastSeq returns the highest sequence number persisted for a room,
	// or 0 if the room has no history.
	LastSeq(ctx context.Context, roomID string) (int64, error)

	// Close releases backend resources.
	Close() error
}

// Cursor is a restartable, lazily advancing read position over one room's
// log. Next returns successive pages; the same cursor position can be
// re-read by constructing a new Cursor with the last returned Pos.
type Cursor struct {
	store    Store
	roomID   string
	pos      int64
	pageSize int
}

// NewCursor creates a cursor positioned after seq since.
func NewCursor(store Store, roomID string, since int64, pageSize int) *Cursor {
	if pageSize <= 0 {
		pageSize = DefaultQueryLimit
	}
	return &Cursor{
		store:    store,
		roomID:   roomID,
		pos:      since,
		pageSize: pageSize,
	}
}

// Next returns the next page of messages and advances the cursor. A nil
// slice with nil error means the log is exhausted at this position.
func (c *Cursor) Next(ctx context.Context) ([]model.Message, error) {
	msgs, err := c.store.Query(ctx, c.roomID, c.pos, c.pageSize)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	c.pos = msgs[len(msgs)-1].Seq
	return msgs, nil
}

// Pos returns the cursor's current position (the last seq returned).
func (c *Cursor) Pos() int64 { return c.pos }
