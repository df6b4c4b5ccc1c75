package domain

// AuthContext contains authenticated caller info for request context.
// The caller is the chat orchestration layer acting on behalf of UserID.
type AuthContext struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// TokenClaims represents the JWT payload issued by the orchestration layer.
type TokenClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}
