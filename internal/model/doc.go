// Package model defines shared data types used across the chat coordinator.
//
// Conventions:
//   - Sequence numbers: int64, room-scoped, strictly increasing from 1
//   - Timestamps: time.Time, stored in UTC
//   - IDs: string for room identifiers, uuid.UUID for connections and messages
package model
