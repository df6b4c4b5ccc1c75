package postgres

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	// sealedPrefix marks a column value written by TokenCipher.
	// The version allows future format changes.
	sealedPrefix = "v1:"

	nonceSize = 12

	// keySize is the required key size for AES-256
	keySize = 32
)

var (
	// ErrInvalidKeySize is returned when the encryption key is not 32 bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")

	// ErrInvalidBlobSize is returned when the sealed value is too small.
	ErrInvalidBlobSize = errors.New("sealed value is too small")

	// ErrDecryptionFailed is returned when decryption fails (wrong key, wrong row or corrupted data).
	ErrDecryptionFailed = errors.New("failed to decrypt sealed value")
)

// TokenCipher seals provider tokens with AES-256-GCM before they are stored.
// The owning user id is bound as additional data, so a value copied onto
// another user's row does not open.
//
// Sealed format: "v1:" || base64(nonce(12) || ciphertext(N))
type TokenCipher struct {
	gcm cipher.AEAD
}

// NewTokenCipher creates a cipher with the given 32-byte key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &TokenCipher{gcm: gcm}, nil
}

// ParseTokenKey decodes a base64 (standard or URL alphabet) 32-byte key.
func ParseTokenKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(encoded); err == nil {
			if len(key) != keySize {
				return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
			}
			return key, nil
		}
	}
	return nil, errors.New("encryption key is not valid base64")
}

// Seal encrypts value for userID. The empty string stays empty.
func (c *TokenCipher) Seal(value, userID string) (string, error) {
	if value == "" {
		return "", nil
	}

	nonce := make([]byte, nonceSize, nonceSize+len(value)+c.gcm.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	blob := c.gcm.Seal(nonce, nonce, []byte(value), []byte(userID))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(blob), nil
}

// Open decrypts a value sealed for userID.
// Values without the sealed prefix are returned unchanged so rows written
// before encryption was enabled stay readable.
func (c *TokenCipher) Open(stored, userID string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}

	blob, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(blob) < nonceSize+c.gcm.Overhead() {
		return "", ErrInvalidBlobSize
	}

	plaintext, err := c.gcm.Open(nil, blob[:nonceSize], blob[nonceSize:], []byte(userID))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
