package mocks

import (
	"context"
	"sync"
	"time"
)

// MockDistributedLock is an in-process DistributedLock for testing
type MockDistributedLock struct {
	mu    sync.Mutex
	held  map[string]time.Time
	Fails int // number of upcoming Acquire calls that report "held elsewhere"

	AcquireCalls int
	ReleaseCalls int
}

// NewMockDistributedLock creates a new MockDistributedLock
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{
		held: make(map[string]time.Time),
	}
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AcquireCalls++
	if m.Fails > 0 {
		m.Fails--
		return false, nil
	}
	if until, ok := m.held[name]; ok && time.Now().Before(until) {
		return false, nil
	}
	m.held[name] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls++
	delete(m.held, name)
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error {
	return nil
}

// IsHeld reports whether the named lock is currently held
func (m *MockDistributedLock) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.held[name]
	return ok && time.Now().Before(until)
}
