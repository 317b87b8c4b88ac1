// Package transport is the WebSocket shell around the coordination core.
//
// It owns framing and socket I/O only: each accepted connection gets a
// read pump feeding Coordinator.OnMessage and a write pump draining a
// bounded outbound queue. The core never blocks on a slow socket; when a
// queue fills, the configured overflow policy either drops the frame or
// disconnects the laggard.
package transport
