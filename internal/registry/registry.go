package registry

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pampa/chatd/internal/model"
)

// Errors
var (
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrConnectionClosed    = errors.New("connection closed")
)

// Pusher is the outbound half of the transport boundary. Push must not
// block: a slow consumer is the transport's problem, surfaced as an error.
type Pusher interface {
	// Push enqueues one serialized frame for delivery.
	Push(data []byte) error

	// Close releases the transport's outbound resources. Safe to call
	// more than once.
	Close()
}

// Conn is one active client link. Owned exclusively by the Registry;
// created on register, destroyed on unregister.
type Conn struct {
	Handle      uuid.UUID
	Identity    string
	ConnectedAt time.Time

	pusher    Pusher
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// Push forwards a frame to the connection's transport. Returns
// ErrConnectionClosed after the connection is unregistered.
func (c *Conn) Push(data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrConnectionClosed
	}
	return c.pusher.Push(data)
}

// close marks the connection dead and releases the transport exactly once.
func (c *Conn) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(c.pusher.Close)
}

// Info returns the read-only view of the connection.
func (c *Conn) Info() model.ConnectionInfo {
	return model.ConnectionInfo{
		Handle:      c.Handle,
		Identity:    c.Identity,
		ConnectedAt: c.ConnectedAt,
	}
}

// Stats holds registry counters.
type Stats struct {
	Active       int
	Registered   int64
	Unregistered int64
}

// Registry tracks every live connection and its identity.
type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[uuid.UUID]*Conn

	registered   int64
	unregistered int64
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		conns:  make(map[uuid.UUID]*Conn),
	}
}

// Register adds a connection under the given handle. Fails with
// ErrDuplicateConnection if the same transport link is registered twice.
func (r *Registry) Register(handle uuid.UUID, identity string, p Pusher) (*Conn, error) {
	conn := &Conn{
		Handle:      handle,
		Identity:    identity,
		ConnectedAt: time.Now().UTC(),
		pusher:      p,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[handle]; exists {
		return nil, ErrDuplicateConnection
	}
	r.conns[handle] = conn
	r.registered++

	r.logger.Info("connection registered",
		"handle", handle,
		"identity", identity,
	)
	return conn, nil
}

// Unregister removes a connection and closes its transport. Idempotent:
// unregistering an already-removed handle is a no-op.
func (r *Registry) Unregister(handle uuid.UUID) {
	r.mu.Lock()
	conn, ok := r.conns[handle]
	if ok {
		delete(r.conns, handle)
		r.unregistered++
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	conn.close()
	r.logger.Info("connection unregistered",
		"handle", handle,
		"identity", conn.Identity,
	)
}

// Lookup returns the connection for a handle.
func (r *Registry) Lookup(handle uuid.UUID) (*Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[handle]
	if !ok {
		return nil, ErrUnknownConnection
	}
	return conn, nil
}

// Active reports whether a handle is currently registered.
func (r *Registry) Active(handle uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[handle]
	return ok
}

// ListActive returns the read-only views of all live connections,
// ordered by connect time for stable output.
func (r *Registry) ListActive() []model.ConnectionInfo {
	r.mu.RLock()
	infos := make([]model.ConnectionInfo, 0, len(r.conns))
	for _, c := range r.conns {
		infos = append(infos, c.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].Handle.String() < infos[j].Handle.String()
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Stats returns current counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Active:       len(r.conns),
		Registered:   r.registered,
		Unregistered: r.unregistered,
	}
}
