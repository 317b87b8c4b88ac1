package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pampa/chatd/internal/model"
)

// PostgresStore persists the message log in a PostgreSQL table keyed by
// (room_id, seq). Appends run synchronously under the room lock, which is
// what makes sequence assignment atomic with durability; deployments that
// cannot afford a database round-trip on the send path should use the
// memory or redis backend.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the messages table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			room_id  TEXT        NOT NULL,
			seq      BIGINT      NOT NULL,
			id       UUID        NOT NULL,
			kind     TEXT        NOT NULL,
			sender   TEXT        NOT NULL,
			handle   UUID        NOT NULL,
			body     TEXT        NOT NULL,
			sent_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (room_id, seq)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure messages schema: %w", err)
	}
	return nil
}

// Append implements Store. ON CONFLICT DO NOTHING makes a replayed append
// (e.g. a retried frame after a crash between persist and fan-out)
// idempotent instead of an error.
func (s *PostgresStore) Append(ctx context.Context, msg model.Message) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (room_id, seq, id, kind, sender, handle, body, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (room_id, seq) DO NOTHING
	`, msg.RoomID, msg.Seq, msg.ID, string(msg.Kind), msg.Sender, msg.Handle, msg.Body, msg.SentAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Query implements Store.
func (s *PostgresStore) Query(ctx context.Context, roomID string, since int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	rows, err := s.db.Query(ctx, `
		SELECT room_id, seq, id, kind, sender, handle, body, sent_at
		FROM messages
		WHERE room_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`, roomID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var kind string
		if err := rows.Scan(&m.RoomID, &m.Seq, &m.ID, &kind, &m.Sender, &m.Handle, &m.Body, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Kind = model.MessageKind(kind)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// LastSeq implements Store.
func (s *PostgresStore) LastSeq(ctx context.Context, roomID string) (int64, error) {
	var last int64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM messages WHERE room_id = $1
	`, roomID).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return last, nil
}

// Close implements Store. The pool is owned by the caller that built it.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
