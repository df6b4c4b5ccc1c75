package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
)

// ToolCall records one CallTool invocation
type ToolCall struct {
	Target driven.ToolTarget
	Name   string
	Args   map[string]any
}

// MockToolClient is a scriptable ToolClient for testing
type MockToolClient struct {
	mu sync.Mutex

	Tools   []domain.ToolDescriptor
	ListErr error

	// Results and Errors are keyed by original tool name
	Results map[string]json.RawMessage
	Errors  map[string]error

	ListCalls int
	Calls     []ToolCall
}

// NewMockToolClient creates a new MockToolClient
func NewMockToolClient(tools ...domain.ToolDescriptor) *MockToolClient {
	return &MockToolClient{
		Tools:   tools,
		Results: make(map[string]json.RawMessage),
		Errors:  make(map[string]error),
	}
}

func (m *MockToolClient) ListTools(ctx context.Context, target driven.ToolTarget) ([]domain.ToolDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]domain.ToolDescriptor, len(m.Tools))
	copy(out, m.Tools)
	return out, nil
}

func (m *MockToolClient) CallTool(ctx context.Context, target driven.ToolTarget, name string, args map[string]any) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, ToolCall{Target: target, Name: name, Args: args})
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	if res, ok := m.Results[name]; ok {
		return res, nil
	}
	return json.RawMessage(`{}`), nil
}

// NetworkCalls returns the total number of list and call requests
func (m *MockToolClient) NetworkCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ListCalls + len(m.Calls)
}

// CallCount returns the number of CallTool requests
func (m *MockToolClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
