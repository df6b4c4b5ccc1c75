package domain

import "time"

// RefreshBuffer is the margin before expiry at which a token is refreshed
// proactively instead of being handed out.
const RefreshBuffer = 5 * time.Minute

// DefaultTokenLifetime is assumed when a token response omits expires_in.
const DefaultTokenLifetime = time.Hour

// TokenRecord is the durable credential for one user's provider connection.
// ExpiresAt is always derived from the expires_in of the most recent
// issue or refresh response.
type TokenRecord struct {
	UserID       string    `json:"user_id"`
	TenantID     string    `json:"tenant_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Remaining returns how long the access token stays valid after now.
func (r *TokenRecord) Remaining(now time.Time) time.Duration {
	return r.ExpiresAt.Sub(now)
}

// NeedsRefresh reports whether the token is inside the refresh buffer.
func (r *TokenRecord) NeedsRefresh(now time.Time, buffer time.Duration) bool {
	return r.Remaining(now) < buffer
}

// TokenGrant is a successful token endpoint response.
type TokenGrant struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`

	// HasExpiresIn is set when the response carried expires_in, so an
	// explicit zero can be told apart from an omitted field.
	HasExpiresIn bool `json:"-"`
}

// Lifetime returns the grant lifetime. An explicit zero or negative
// expires_in means the token is already expired; only an omitted field
// falls back to DefaultTokenLifetime.
func (g *TokenGrant) Lifetime() time.Duration {
	switch {
	case g.ExpiresIn > 0:
		return time.Duration(g.ExpiresIn) * time.Second
	case g.HasExpiresIn:
		return 0
	default:
		return DefaultTokenLifetime
	}
}

// ApplyTo builds the record that results from applying this grant at now.
// A grant without a refresh token keeps the previous one (no rotation).
func (g *TokenGrant) ApplyTo(prev *TokenRecord, userID, tenantID string, now time.Time) *TokenRecord {
	rec := &TokenRecord{
		UserID:       userID,
		TenantID:     tenantID,
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		TokenType:    g.TokenType,
		ExpiresAt:    now.Add(g.Lifetime()),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if prev != nil {
		rec.CreatedAt = prev.CreatedAt
		if rec.RefreshToken == "" {
			rec.RefreshToken = prev.RefreshToken
		}
		if rec.TokenType == "" {
			rec.TokenType = prev.TokenType
		}
	}
	return rec
}

// ConnectionStatus is a secret-free view of a user's connection.
type ConnectionStatus struct {
	Connected bool       `json:"connected"`
	TenantID  string     `json:"tenant_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
