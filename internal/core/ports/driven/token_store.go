package driven

import (
	"context"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// TokenStore persists one token record per user.
type TokenStore interface {
	// Get returns the record for the user.
	// Returns nil, nil if the user has no record.
	Get(ctx context.Context, userID string) (*domain.TokenRecord, error)

	// Save creates or atomically replaces the user's record.
	Save(ctx context.Context, record *domain.TokenRecord) error

	// Delete removes the user's record. Deleting a missing record is not an error.
	Delete(ctx context.Context, userID string) error
}
