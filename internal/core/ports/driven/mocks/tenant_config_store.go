package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// MockTenantConfigStore is an in-memory TenantConfigStore for testing
type MockTenantConfigStore struct {
	mu      sync.RWMutex
	configs map[string]domain.TenantConfig
}

// NewMockTenantConfigStore creates a new MockTenantConfigStore
func NewMockTenantConfigStore() *MockTenantConfigStore {
	return &MockTenantConfigStore{
		configs: make(map[string]domain.TenantConfig),
	}
}

func (m *MockTenantConfigStore) Get(ctx context.Context, userID string) (*domain.TenantConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[userID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (m *MockTenantConfigStore) Save(ctx context.Context, cfg *domain.TenantConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.UserID] = *cfg
	return nil
}

func (m *MockTenantConfigStore) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.configs, userID)
	return nil
}
