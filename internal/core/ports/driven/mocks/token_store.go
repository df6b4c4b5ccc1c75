package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// MockTokenStore is an in-memory TokenStore for testing
type MockTokenStore struct {
	mu      sync.RWMutex
	records map[string]domain.TokenRecord

	SaveCalls   int
	DeleteCalls int
	GetErr      error
	SaveErr     error
}

// NewMockTokenStore creates a new MockTokenStore
func NewMockTokenStore() *MockTokenStore {
	return &MockTokenStore{
		records: make(map[string]domain.TokenRecord),
	}
}

func (m *MockTokenStore) Get(ctx context.Context, userID string) (*domain.TokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	rec, ok := m.records[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MockTokenStore) Save(ctx context.Context, record *domain.TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.records[record.UserID] = *record
	return nil
}

func (m *MockTokenStore) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	delete(m.records, userID)
	return nil
}

// Put seeds a record without counting it as a Save
func (m *MockTokenStore) Put(record *domain.TokenRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.UserID] = *record
}

// Len returns the number of stored records
func (m *MockTokenStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
