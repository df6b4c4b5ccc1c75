package driven

import "github.com/custodia-labs/toolbridge/internal/core/domain"

// AuthAdapter validates bearer tokens presented by the orchestration layer.
type AuthAdapter interface {
	// GenerateToken creates a signed token from claims.
	GenerateToken(claims *domain.TokenClaims) (string, error)

	// ParseToken validates a token and returns its claims.
	ParseToken(token string) (*domain.TokenClaims, error)
}
