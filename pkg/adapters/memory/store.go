package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/braid/pkg/domain"
)

// Store implements ports.HistoryStore in memory.
// Safe for concurrent use. Histories live as long as the Store.
type Store struct {
	data map[string][]domain.Message
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]domain.Message),
	}
}

// Get returns a copy of the session history, creating an empty entry on first use.
func (s *Store) Get(ctx context.Context, sessionID string) ([]domain.Message, error) {
	s.mu.RLock()
	msgs, ok := s.data[sessionID]
	s.mu.RUnlock()
	if ok {
		// Copy on read so callers can't mutate store state through the slice.
		return domain.CloneMessages(msgs), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if msgs, ok := s.data[sessionID]; ok {
		return domain.CloneMessages(msgs), nil
	}
	s.data[sessionID] = []domain.Message{}
	return []domain.Message{}, nil
}

// Append adds msgs to the session under the write lock, so readers see all or none.
func (s *Store) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	copied := domain.CloneMessages(msgs)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = append(s.data[sessionID], copied...)
	return nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns active sessions, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}
