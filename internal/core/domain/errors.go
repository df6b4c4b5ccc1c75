package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired indicates the caller's auth token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the caller's auth token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrConfigurationMissing indicates the user has no tenant/client configuration
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrStateMismatch indicates the callback state does not match the stored state
	ErrStateMismatch = errors.New("state mismatch")

	// ErrMissingSessionData indicates the PKCE session is absent, expired or incomplete
	ErrMissingSessionData = errors.New("missing session data")

	// ErrTokenExchangeFailed indicates the provider rejected the authorization code
	ErrTokenExchangeFailed = errors.New("token exchange failed")

	// ErrTokenRefreshFailed indicates the provider rejected the refresh token
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// ErrNotConnected indicates there is no usable token record for the user
	ErrNotConnected = errors.New("not connected")

	// ErrAuthenticationRequired indicates no valid token was available at invocation time
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrToolTimeout indicates a tool call exceeded its deadline
	ErrToolTimeout = errors.New("tool call timed out")

	// ErrToolRPC indicates the provider answered with a JSON-RPC error object
	ErrToolRPC = errors.New("tool rpc error")

	// ErrToolHTTP indicates the tool endpoint answered with a non-2xx status
	ErrToolHTTP = errors.New("tool http error")

	// ErrInvalidArguments indicates tool arguments failed local validation
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrUnknownTool indicates the requested tool is not advertised by the provider
	ErrUnknownTool = errors.New("unknown tool")
)

// TokenEndpointError is a non-2xx answer from the provider's token endpoint.
// It matches ErrTokenExchangeFailed or ErrTokenRefreshFailed depending on Refresh.
type TokenEndpointError struct {
	Refresh bool
	Status  int
	Body    string
}

func (e *TokenEndpointError) Error() string {
	op := "token exchange"
	if e.Refresh {
		op = "token refresh"
	}
	return fmt.Sprintf("%s failed: status %d: %s", op, e.Status, e.Body)
}

// Is allows errors.Is to match the sentinel for the failed operation.
func (e *TokenEndpointError) Is(target error) bool {
	if e.Refresh {
		return target == ErrTokenRefreshFailed
	}
	return target == ErrTokenExchangeFailed
}

// ToolHTTPError is a non-2xx answer from the tool endpoint.
type ToolHTTPError struct {
	Status int
	Body   string
}

func (e *ToolHTTPError) Error() string {
	return fmt.Sprintf("tool endpoint returned status %d: %s", e.Status, e.Body)
}

func (e *ToolHTTPError) Unwrap() error { return ErrToolHTTP }

// ToolRPCError is the JSON-RPC error member of a tool endpoint response.
type ToolRPCError struct {
	Code    int
	Message string
}

func (e *ToolRPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *ToolRPCError) Unwrap() error { return ErrToolRPC }

// ProviderError is an error reported by the provider on the callback redirect.
type ProviderError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// FieldError is a single argument validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every argument that failed validation.
type ValidationError struct {
	Tool   string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid arguments for %s", e.Tool)
	}
	msg := fmt.Sprintf("invalid arguments for %s: %s %s", e.Tool, e.Fields[0].Field, e.Fields[0].Message)
	if extra := len(e.Fields) - 1; extra > 0 {
		msg += fmt.Sprintf(" (and %d more)", extra)
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArguments }
