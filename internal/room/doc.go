// Package room implements the Room Directory component.
//
// The directory owns room existence and membership:
//   - Rooms are created lazily on first join
//   - Every mutating operation on one room (join, leave, sequence
//     assignment via WithRoom) is serialized by that room's lock;
//     operations on different rooms do not contend
//   - Empty rooms are reclaimed when the policy allows, without racing a
//     concurrent join for the same room
//
// Join/leave notices are handed to a NoticeHandler while the room lock is
// still held, so a notice and a concurrent chat message resolve to one
// total order visible identically to every recipient.
package room
