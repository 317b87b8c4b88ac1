// Package session implements the Session Coordinator, the top-level façade
// binding a connection's lifecycle across the registry, room directory,
// message router, and history store.
//
// Per-connection state machine:
//
//	Connected -> Idle (no room) <-> InRoom (one or more rooms) -> Disconnected
//
// Disconnected is terminal; disconnect from any state cascades cleanup of
// all room memberships and registry removal. OnConnect, OnMessage, and
// OnDisconnect are the only points where the transport layer touches the
// coordination core.
package session
