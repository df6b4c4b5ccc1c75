// Package oauthclient talks to a tenant's OAuth token endpoint as a public client.
package oauthclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
)

// Ensure Client implements TokenEndpoint
var _ driven.TokenEndpoint = (*Client)(nil)

const (
	// DefaultTimeout bounds every token endpoint call.
	DefaultTimeout = 15 * time.Second

	maxResponseBytes = 1 << 20
	maxErrorBody     = 2048
)

// Client posts form-encoded grants to the token endpoint. It never sends a client secret.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// New creates a Client. A nil httpClient uses a dedicated client with shared transport.
func New(httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{httpClient: httpClient, timeout: timeout}
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, req driven.ExchangeRequest) (*domain.TokenGrant, error) {
	params := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {req.Code},
		"redirect_uri":  {req.RedirectURI},
		"client_id":     {req.ClientID},
		"code_verifier": {req.CodeVerifier},
	}
	return c.post(ctx, req.TokenURL, params, false)
}

// Refresh obtains a new access token with a refresh token.
func (c *Client) Refresh(ctx context.Context, req driven.RefreshRequest) (*domain.TokenGrant, error) {
	params := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {req.RefreshToken},
		"client_id":     {req.ClientID},
	}
	return c.post(ctx, req.TokenURL, params, true)
}

func (c *Client) post(ctx context.Context, tokenURL string, params url.Values, refresh bool) (*domain.TokenGrant, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.TokenEndpointError{
			Refresh: refresh,
			Status:  resp.StatusCode,
			Body:    truncate(string(body), maxErrorBody),
		}
	}

	var tokenResp struct {
		AccessToken  string      `json:"access_token"`
		RefreshToken string      `json:"refresh_token"`
		ExpiresIn    json.Number `json:"expires_in"`
		TokenType    string      `json:"token_type"`
		Scope        string      `json:"scope"`
		Error        string      `json:"error"`
		ErrorDesc    string      `json:"error_description"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Some providers answer 200 with an error object
	if tokenResp.Error != "" || tokenResp.AccessToken == "" {
		msg := tokenResp.Error
		if tokenResp.ErrorDesc != "" {
			msg += ": " + tokenResp.ErrorDesc
		}
		if msg == "" {
			msg = "response has no access_token"
		}
		return nil, &domain.TokenEndpointError{Refresh: refresh, Status: resp.StatusCode, Body: msg}
	}

	expiresIn, hasExpiresIn, err := parseExpiresIn(tokenResp.ExpiresIn)
	if err != nil {
		return nil, err
	}

	return &domain.TokenGrant{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresIn:    expiresIn,
		TokenType:    tokenResp.TokenType,
		Scope:        tokenResp.Scope,
		HasExpiresIn: hasExpiresIn,
	}, nil
}

// parseExpiresIn accepts integer seconds, encoded as a number or a string.
// present is false when the field was omitted or null.
func parseExpiresIn(n json.Number) (seconds int, present bool, err error) {
	if n == "" {
		return 0, false, nil
	}
	if v, err := strconv.Atoi(n.String()); err == nil {
		return v, true, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false, errors.New("decode response: invalid expires_in")
	}
	return int(f), true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
