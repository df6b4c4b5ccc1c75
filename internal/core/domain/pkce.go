package domain

import "time"

// PKCESessionTTL is how long an authorization attempt stays redeemable.
const PKCESessionTTL = 10 * time.Minute

// PKCESession is the ephemeral state of one in-flight authorization attempt.
// It is single-use: consumed on callback or dropped after ExpiresAt.
type PKCESession struct {
	State         string    `json:"state"`
	UserID        string    `json:"user_id"`
	CodeVerifier  string    `json:"code_verifier"`
	CodeChallenge string    `json:"code_challenge"`
	RedirectURI   string    `json:"redirect_uri"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// IsExpired checks if the session can no longer be redeemed.
func (s *PKCESession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AuthFlowState is a step of the authorization flow.
type AuthFlowState string

const (
	AuthFlowInit             AuthFlowState = "INIT"
	AuthFlowAuthRequested    AuthFlowState = "AUTH_REQUESTED"
	AuthFlowCallbackReceived AuthFlowState = "CALLBACK_RECEIVED"
	AuthFlowStateValidated   AuthFlowState = "STATE_VALIDATED"
	AuthFlowTokenExchanged   AuthFlowState = "TOKEN_EXCHANGED"
	AuthFlowFailed           AuthFlowState = "FAILED"
)

// IsTerminal returns true for states that end the flow.
func (s AuthFlowState) IsTerminal() bool {
	return s == AuthFlowTokenExchanged || s == AuthFlowFailed
}

// CanTransitionTo reports whether next is a legal successor of s.
// Any non-terminal state may fail.
func (s AuthFlowState) CanTransitionTo(next AuthFlowState) bool {
	if next == AuthFlowFailed {
		return !s.IsTerminal()
	}
	switch s {
	case AuthFlowInit:
		return next == AuthFlowAuthRequested || next == AuthFlowCallbackReceived
	case AuthFlowAuthRequested:
		return next == AuthFlowCallbackReceived
	case AuthFlowCallbackReceived:
		return next == AuthFlowStateValidated
	case AuthFlowStateValidated:
		return next == AuthFlowTokenExchanged
	default:
		return false
	}
}
