package services

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driving"
)

var _ driving.AuthService = (*authService)(nil)

// authService resolves the orchestration layer's bearer JWT into the user
// the bridge acts for. It keeps no session state of its own.
type authService struct {
	authAdapter driven.AuthAdapter
	now         func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(authAdapter driven.AuthAdapter) driving.AuthService {
	return &authService{authAdapter: authAdapter, now: time.Now}
}

// ValidateToken returns ErrTokenExpired for expired tokens and ErrTokenInvalid
// for everything else the adapter rejects, or for tokens naming no user.
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}

	claims, err := s.authAdapter.ParseToken(token)
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return nil, domain.ErrTokenExpired
	case err != nil:
		return nil, domain.ErrTokenInvalid
	case claims.ExpiresAt > 0 && s.now().Unix() > claims.ExpiresAt:
		return nil, domain.ErrTokenExpired
	case claims.UserID == "":
		return nil, domain.ErrTokenInvalid
	}

	return &domain.AuthContext{
		UserID:    claims.UserID,
		Email:     claims.Email,
		SessionID: claims.SessionID,
	}, nil
}
