package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

func TestNewAdapter(t *testing.T) {
	adapter := NewAdapter("test-secret", WithIssuer("chat"), WithAudience("toolbridge"))
	if adapter == nil {
		t.Fatal("expected non-nil adapter")
	}
	if string(adapter.jwtSecret) != "test-secret" {
		t.Error("expected jwt secret to be set")
	}
	if adapter.issuer != "chat" || adapter.audience != "toolbridge" {
		t.Errorf("expected issuer and audience to be set, got %q %q", adapter.issuer, adapter.audience)
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	adapter := NewAdapter("secret", WithIssuer("chat"), WithAudience("toolbridge"))

	now := time.Now()
	claims := &domain.TokenClaims{
		UserID:    "user-123",
		Email:     "test@example.com",
		SessionID: "session-789",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}

	token, err := adapter.GenerateToken(claims)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	parsed, err := adapter.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}

	if parsed.UserID != claims.UserID {
		t.Errorf("expected user id %s, got %s", claims.UserID, parsed.UserID)
	}
	if parsed.Email != claims.Email {
		t.Errorf("expected email %s, got %s", claims.Email, parsed.Email)
	}
	if parsed.SessionID != claims.SessionID {
		t.Errorf("expected session id %s, got %s", claims.SessionID, parsed.SessionID)
	}
	if parsed.ExpiresAt != claims.ExpiresAt {
		t.Errorf("expected exp %d, got %d", claims.ExpiresAt, parsed.ExpiresAt)
	}
}

func TestParseToken_SubjectFallback(t *testing.T) {
	adapter := NewAdapter("secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-from-sub",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	parsed, err := adapter.ParseToken(signed)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if parsed.UserID != "user-from-sub" {
		t.Errorf("expected user id from sub, got %q", parsed.UserID)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	good := NewAdapter("secret", WithIssuer("chat"))
	now := time.Now()

	expired, _ := good.GenerateToken(&domain.TokenClaims{UserID: "u", IssuedAt: now.Add(-2 * time.Hour).Unix(), ExpiresAt: now.Add(-time.Hour).Unix()})
	valid, _ := good.GenerateToken(&domain.TokenClaims{UserID: "u", IssuedAt: now.Unix(), ExpiresAt: now.Add(time.Hour).Unix()})

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{UserID: "u"})
	noExpSigned, _ := noExp.SignedString([]byte("secret"))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwtClaims{UserID: "u"})
	noneSigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		adapter *Adapter
		token   string
	}{
		{"expired", good, expired},
		{"wrong secret", NewAdapter("other", WithIssuer("chat")), valid},
		{"wrong issuer", NewAdapter("secret", WithIssuer("someone-else")), valid},
		{"missing exp", NewAdapter("secret"), noExpSigned},
		{"alg none", NewAdapter("secret"), noneSigned},
		{"garbage", good, "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.adapter.ParseToken(tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := good.ParseToken(expired); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}
