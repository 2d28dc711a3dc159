package middleware_test

import (
	"context"
	"sync"

	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/ports"
)

// MockStore is a minimal map-based store with no admin capabilities.
type MockStore struct {
	mu   sync.Mutex
	data map[string][]domain.Message
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string][]domain.Message),
	}
}

func (s *MockStore) Get(ctx context.Context, sessionID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneMessages(s.data[sessionID]), nil
}

func (s *MockStore) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = append(s.data[sessionID], domain.CloneMessages(msgs)...)
	return nil
}

var _ ports.HistoryStore = (*MockStore)(nil)
