package domain

import (
	"strings"
	"time"
)

// TenantPlaceholder is substituted with the normalized tenant identifier
// in endpoint templates.
const TenantPlaceholder = "{tenant}"

// TenantConfig is the per-user provider configuration needed to start an
// authorization flow: which tenant to talk to and which public client to use.
type TenantConfig struct {
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsConfigured returns true if the config has everything the flow needs.
func (c *TenantConfig) IsConfigured() bool {
	return c != nil && c.TenantID != "" && c.ClientID != ""
}

// EndpointTemplates holds URL templates for the provider endpoints.
// Each template may contain TenantPlaceholder.
type EndpointTemplates struct {
	Authorize string
	Token     string
	MCP       string
}

// TenantEndpoints are the resolved provider URLs for one tenant.
type TenantEndpoints struct {
	Authorize string
	Token     string
	MCP       string
}

// Resolve expands the templates for the given tenant identifier.
func (t EndpointTemplates) Resolve(tenantID string) TenantEndpoints {
	host := NormalizeTenantID(tenantID)
	return TenantEndpoints{
		Authorize: strings.ReplaceAll(t.Authorize, TenantPlaceholder, host),
		Token:     strings.ReplaceAll(t.Token, TenantPlaceholder, host),
		MCP:       strings.ReplaceAll(t.MCP, TenantPlaceholder, host),
	}
}

// NormalizeTenantID converts a tenant identifier into its host-name form:
// lower case, underscores replaced with hyphens, surrounding space trimmed.
// "1234567_SB1" becomes "1234567-sb1".
func NormalizeTenantID(tenantID string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tenantID)), "_", "-")
}
