package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with a process-local map.
// It is the default backend: histories live for the process lifetime
// unless a sweep policy is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
	closed   bool
}

type memoryEntry struct {
	turns   []Turn
	updated time.Time
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
	}
}

// Get retrieves the history for a session in order.
func (s *MemoryStore) Get(ctx context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}

	// Copy so callers never alias the stored slice.
	turns := make([]Turn, len(entry.turns))
	copy(turns, entry.turns)
	return turns, nil
}

// Set replaces the stored history for a session.
func (s *MemoryStore) Set(ctx context.Context, sessionID string, turns []Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	stored := make([]Turn, len(turns))
	copy(stored, turns)
	s.sessions[sessionID] = &memoryEntry{
		turns:   stored,
		updated: time.Now(),
	}
	return nil
}

// Len returns the number of distinct sessions currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions that have not been updated within maxIdle.
// It returns the number of sessions removed.
func (s *MemoryStore) Sweep(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for id, entry := range s.sessions {
		if entry.updated.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Close releases the store. Subsequent operations return ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.sessions = nil
	return nil
}
