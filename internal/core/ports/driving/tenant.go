package driving

import (
	"context"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// TenantConfigService manages per-user provider configuration.
type TenantConfigService interface {
	Get(ctx context.Context, userID string) (*domain.TenantConfig, error)
	Save(ctx context.Context, userID string, req SaveTenantConfigRequest) (*domain.TenantConfig, error)
	Delete(ctx context.Context, userID string) error
}

// SaveTenantConfigRequest sets the tenant and public client for a user.
// @Description Tenant configuration for the connected provider
type SaveTenantConfigRequest struct {
	TenantID string `json:"tenant_id" example:"1234567_SB1"`
	ClientID string `json:"client_id" example:"a1b2c3d4"`
	Scope    string `json:"scope,omitempty" example:"mcp"`
}
