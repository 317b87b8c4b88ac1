// Package router implements the Message Router component.
//
// The router is the only producer of sequenced messages. For every chat
// send it, under the room's lock:
//   - validates the sender's membership
//   - assigns the next room-scoped sequence number
//   - appends to the history store (durability precedes visibility)
//   - fans out to the membership snapshot taken at that moment
//
// Membership notices ride the same locked broadcast path, so every
// recipient observes one consistent order of notices versus chats, but
// notices are transient: no sequence number, no history entry. Chat
// sequence numbers are therefore dense from 1.
//
// A delivery failure to one recipient never blocks or fails delivery to
// others and never fails the send itself; failures are counted and logged.
package router
