package driving

import (
	"context"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// TokenService is the only gate for reading provider credentials.
type TokenService interface {
	// GetValidAccessToken returns a token that stays valid for at least the
	// refresh buffer, refreshing it first when needed. Returns
	// domain.ErrNotConnected when the user has no usable credential.
	GetValidAccessToken(ctx context.Context, userID string) (string, error)

	// Status reports whether the user is connected, without secrets.
	Status(ctx context.Context, userID string) (*domain.ConnectionStatus, error)

	// Disconnect deletes the user's token record.
	Disconnect(ctx context.Context, userID string) error
}
