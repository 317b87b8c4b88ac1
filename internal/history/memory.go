package history

import (
	"context"
	"sort"
	"sync"

	"github.com/pampa/chatd/internal/model"
)

// MemoryStore keeps per-room logs in process memory. Each room retains at
// most Retain messages; sequence numbers stay intact as old entries are
// trimmed, so queries below the retention floor return what is retained.
type MemoryStore struct {
	retain int

	mu     sync.RWMutex
	rooms  map[string]*memoryLog
	closed bool
}

type memoryLog struct {
	mu   sync.Mutex
	msgs []model.Message // ascending by Seq
}

// NewMemoryStore creates a memory store retaining up to retain messages
// per room. retain <= 0 means unbounded.
func NewMemoryStore(retain int) *MemoryStore {
	return &MemoryStore{
		retain: retain,
		rooms:  make(map[string]*memoryLog),
	}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, msg model.Message) error {
	log, err := s.log(msg.RoomID, true)
	if err != nil {
		return err
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	log.msgs = append(log.msgs, msg)
	if s.retain > 0 && len(log.msgs) > s.retain {
		trimmed := make([]model.Message, s.retain)
		copy(trimmed, log.msgs[len(log.msgs)-s.retain:])
		log.msgs = trimmed
	}
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, roomID string, since int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	log, err := s.log(roomID, false)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, nil
	}

	log.mu.Lock()
	defer log.mu.Unlock()

	// First entry with seq > since.
	start := sort.Search(len(log.msgs), func(i int) bool {
		return log.msgs[i].Seq > since
	})

	end := start + limit
	if end > len(log.msgs) {
		end = len(log.msgs)
	}
	if start >= end {
		return nil, nil
	}

	out := make([]model.Message, end-start)
	copy(out, log.msgs[start:end])
	return out, nil
}

// LastSeq implements Store.
func (s *MemoryStore) LastSeq(ctx context.Context, roomID string) (int64, error) {
	log, err := s.log(roomID, false)
	if err != nil {
		return 0, err
	}
	if log == nil {
		return 0, nil
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.msgs) == 0 {
		return 0, nil
	}
	return log.msgs[len(log.msgs)-1].Seq, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.rooms = nil
	return nil
}

// log returns the room's log, optionally creating it.
func (s *MemoryStore) log(roomID string, create bool) (*memoryLog, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	log := s.rooms[roomID]
	s.mu.RUnlock()

	if log != nil || !create {
		return log, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if log := s.rooms[roomID]; log != nil {
		return log, nil
	}
	log = &memoryLog{}
	s.rooms[roomID] = log
	return log, nil
}
