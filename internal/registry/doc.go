// Package registry implements the Connection Registry component.
//
// The registry is the sole owner of live connection state:
//   - Assigns and tracks connection handles
//   - Binds each handle to its display identity and transport pusher
//   - Serves lookups for the room directory and message router
//
// Unregister is idempotent so disconnect races collapse to a single
// cleanup. Cascading room cleanup is orchestrated by the session
// coordinator, not by the registry itself.
package registry
