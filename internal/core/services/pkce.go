package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// codeVerifierLength is within the 43-128 range allowed for PKCE verifiers.
	codeVerifierLength = 64

	// stateBytes is the entropy of the CSRF state parameter.
	stateBytes = 32

	// verifierCharset is the unreserved character set for PKCE verifiers.
	verifierCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
)

// maxUnbiasedByte is the largest multiple of len(verifierCharset) that fits in a byte.
// Bytes at or above it are rejected so every character is equally likely.
const maxUnbiasedByte = 256 - (256 % len(verifierCharset))

// GenerateCodeVerifier creates a cryptographically random PKCE code verifier.
func GenerateCodeVerifier() (string, error) {
	out := make([]byte, 0, codeVerifierLength)
	buf := make([]byte, codeVerifierLength)
	for len(out) < codeVerifierLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			out = append(out, verifierCharset[int(b)%len(verifierCharset)])
			if len(out) == codeVerifierLength {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateCodeChallenge derives the S256 code challenge for a verifier.
func GenerateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState creates an unguessable state parameter for CSRF protection.
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
