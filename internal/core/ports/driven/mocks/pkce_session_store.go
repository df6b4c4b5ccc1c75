package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// MockPKCESessionStore is an in-memory PKCESessionStore for testing
type MockPKCESessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.PKCESession
}

// NewMockPKCESessionStore creates a new MockPKCESessionStore
func NewMockPKCESessionStore() *MockPKCESessionStore {
	return &MockPKCESessionStore{
		sessions: make(map[string]*domain.PKCESession),
	}
}

func (m *MockPKCESessionStore) Save(ctx context.Context, session *domain.PKCESession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *session
	m.sessions[session.State] = &s
	return nil
}

func (m *MockPKCESessionStore) GetAndDelete(ctx context.Context, state string) (*domain.PKCESession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[state]
	if !ok {
		return nil, nil
	}
	delete(m.sessions, state)
	if s.IsExpired(time.Now()) {
		return nil, nil
	}
	return s, nil
}

func (m *MockPKCESessionStore) Cleanup(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var removed int64
	for k, v := range m.sessions {
		if v.IsExpired(now) {
			delete(m.sessions, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions
func (m *MockPKCESessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
