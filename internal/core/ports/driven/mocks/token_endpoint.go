package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
)

// MockTokenEndpoint is a scriptable TokenEndpoint for testing
type MockTokenEndpoint struct {
	mu sync.Mutex

	ExchangeGrant *domain.TokenGrant
	ExchangeErr   error
	RefreshGrant  *domain.TokenGrant
	RefreshErr    error
	// RefreshDelay simulates a slow token endpoint
	RefreshDelay time.Duration

	LastExchange *driven.ExchangeRequest
	LastRefresh  *driven.RefreshRequest

	exchangeCalls atomic.Int32
	refreshCalls  atomic.Int32
}

// NewMockTokenEndpoint creates a new MockTokenEndpoint
func NewMockTokenEndpoint() *MockTokenEndpoint {
	return &MockTokenEndpoint{}
}

func (m *MockTokenEndpoint) Exchange(ctx context.Context, req driven.ExchangeRequest) (*domain.TokenGrant, error) {
	m.exchangeCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastExchange = &req
	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	g := *m.ExchangeGrant
	return &g, nil
}

func (m *MockTokenEndpoint) Refresh(ctx context.Context, req driven.RefreshRequest) (*domain.TokenGrant, error) {
	m.refreshCalls.Add(1)
	if m.RefreshDelay > 0 {
		select {
		case <-time.After(m.RefreshDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRefresh = &req
	if m.RefreshErr != nil {
		return nil, m.RefreshErr
	}
	g := *m.RefreshGrant
	return &g, nil
}

// ExchangeCalls returns the number of Exchange calls
func (m *MockTokenEndpoint) ExchangeCalls() int { return int(m.exchangeCalls.Load()) }

// RefreshCalls returns the number of Refresh calls
func (m *MockTokenEndpoint) RefreshCalls() int { return int(m.refreshCalls.Load()) }
