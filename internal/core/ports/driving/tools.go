package driving

import (
	"context"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// ToolService discovers provider tools and invokes them for a user.
type ToolService interface {
	// DiscoverTools lists the tools the provider currently advertises.
	DiscoverTools(ctx context.Context, userID string) ([]domain.ToolDescriptor, error)

	// BuildRegistry discovers tools and compiles each into an Invocable
	// bound to the user. The registry is built fresh on every call.
	BuildRegistry(ctx context.Context, userID string) (ToolRegistry, error)

	// Invoke runs one tool by original name or sanitized key.
	// It never returns an error: every failure is reported in the result.
	Invoke(ctx context.Context, userID, toolName string, args map[string]any) domain.InvokeResult
}

// ToolRegistry is the set of invocable tools from one discovery cycle.
type ToolRegistry interface {
	// Tools returns the tools in discovery order.
	Tools() []Invocable

	// Lookup finds a tool by sanitized key or original name.
	Lookup(name string) (Invocable, bool)
}

// Invocable is a provider tool compiled into a validated, callable capability.
type Invocable interface {
	// Key is the identifier-safe name used by the orchestration layer.
	Key() string

	// Name is the provider's original name, used on the wire.
	Name() string

	Description() string
	Params() []domain.ParamSpec

	// Validate checks arguments against the tool's schema without any I/O.
	Validate(args map[string]any) error

	// Invoke validates, resolves a fresh token and calls the tool.
	Invoke(ctx context.Context, args map[string]any) domain.InvokeResult
}
