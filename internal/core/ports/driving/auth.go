package driving

import (
	"context"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// AuthService authenticates requests from the orchestration layer.
type AuthService interface {
	// ValidateToken validates a bearer token and returns the caller context.
	ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error)
}
