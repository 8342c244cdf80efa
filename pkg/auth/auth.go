// Package auth verifies the optional API key guarding the service.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks presented API keys against a plain key or a bcrypt hash.
// With neither configured every key is accepted.
type Verifier struct {
	plain string
	hash  []byte
}

// NewVerifier creates a verifier. hash takes precedence over plain.
func NewVerifier(plain, hash string) (*Verifier, error) {
	v := &Verifier{plain: plain}
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("invalid API key hash: %w", err)
		}
		v.hash = []byte(hash)
		v.plain = ""
	}
	return v, nil
}

// Enabled reports whether any key is configured
func (v *Verifier) Enabled() bool {
	return v.plain != "" || len(v.hash) > 0
}

// Verify reports whether key is acceptable
func (v *Verifier) Verify(key string) bool {
	if !v.Enabled() {
		return true
	}
	if key == "" {
		return false
	}
	if len(v.hash) > 0 {
		return bcrypt.CompareHashAndPassword(v.hash, []byte(key)) == nil
	}
	return SecureCompare(key, v.plain)
}

// KeyFromHeader extracts a bearer token from an Authorization header value.
// A bare value without the Bearer prefix is accepted too.
func KeyFromHeader(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// GenerateAPIKey returns a random key and its bcrypt hash for server.apiKeyHash
func GenerateAPIKey() (key, hash string, err error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate API key: %w", err)
	}
	key = base64.RawURLEncoding.EncodeToString(keyBytes)

	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return key, string(h), nil
}

// SecureCompare performs constant-time comparison
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
