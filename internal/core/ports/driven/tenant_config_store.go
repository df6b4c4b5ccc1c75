package driven

import (
	"context"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// TenantConfigStore persists per-user provider configuration.
type TenantConfigStore interface {
	// Get returns the user's configuration.
	// Returns nil, nil if none is stored.
	Get(ctx context.Context, userID string) (*domain.TenantConfig, error)

	// Save creates or replaces the user's configuration.
	Save(ctx context.Context, cfg *domain.TenantConfig) error

	// Delete removes the user's configuration.
	Delete(ctx context.Context, userID string) error
}
