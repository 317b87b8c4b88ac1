// Package history implements the append-only per-room message log.
//
// The Store contract is append/query only: no update or delete exists.
// Query returns messages in strictly increasing sequence order; the since
// cursor is exclusive (messages with seq > since). Three backends:
//
//   - memory: in-process log with a bounded per-room retention window
//   - postgres: durable log on PostgreSQL via pgx
//   - redis: sorted-set log on Redis, scored by sequence number
//
// Sequence numbers are assigned by the room directory's lock, not by the
// store; Append persists an already-numbered message.
package history
