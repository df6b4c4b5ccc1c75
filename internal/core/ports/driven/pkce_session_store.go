package driven

import (
	"context"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// PKCESessionStore manages in-flight authorization attempts.
// Sessions are single-use and expire after domain.PKCESessionTTL.
type PKCESessionStore interface {
	// Save stores a new session keyed by its state.
	Save(ctx context.Context, session *domain.PKCESession) error

	// GetAndDelete atomically retrieves and deletes the session.
	// Returns nil, nil if the session doesn't exist or has expired.
	GetAndDelete(ctx context.Context, state string) (*domain.PKCESession, error)

	// Cleanup removes expired sessions and returns how many were removed.
	Cleanup(ctx context.Context) (int64, error)
}
