package driven

import (
	"context"
	"encoding/json"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// ToolTarget identifies the tenant tool endpoint and the credential to use.
type ToolTarget struct {
	UserID      string
	Endpoint    string
	AccessToken string
}

// ToolClient speaks JSON-RPC 2.0 to a tenant's tool endpoint.
// Every call is an independent request/response; nothing is retried.
type ToolClient interface {
	// ListTools calls tools/list. Unrecognized result shapes yield an
	// empty list rather than an error.
	ListTools(ctx context.Context, target ToolTarget) ([]domain.ToolDescriptor, error)

	// CallTool calls tools/call and returns the raw result member.
	// Errors are *domain.ToolHTTPError, *domain.ToolRPCError,
	// domain.ErrToolTimeout, or the caller's context error.
	CallTool(ctx context.Context, target ToolTarget, name string, args map[string]any) (json.RawMessage, error)
}
