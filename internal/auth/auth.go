// Package auth validates API keys against configured SHA-256 hashes and
// resolves the actor name recorded in the audit trail.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// APIKey is one configured key: the hex SHA-256 hash of the secret and
// the actor name it authenticates as.
type APIKey struct {
	KeyHash string
	Name    string
}

// Authenticator validates API keys and resolves actor names.
type Authenticator struct {
	keys map[string]APIKey // keyhash -> key
}

// NewAuthenticator creates an authenticator from the configured keys.
func NewAuthenticator(keys []APIKey) *Authenticator {
	auth := &Authenticator{
		keys: make(map[string]APIKey),
	}
	for _, key := range keys {
		auth.keys[key.KeyHash] = key
	}
	return auth
}

// ValidateAPIKey validates an API key and returns the actor name it
// authenticates as.
func (a *Authenticator) ValidateAPIKey(apiKey string) (string, error) {
	keyHash := HashAPIKey(apiKey)

	key, ok := a.keys[keyHash]
	if !ok {
		return "", fmt.Errorf("invalid API key")
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(keyHash), []byte(key.KeyHash)) != 1 {
		return "", fmt.Errorf("invalid API key")
	}
	return key.Name, nil
}

// ExtractAPIKey extracts the API key from the Authorization header.
func ExtractAPIKey(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	// Support "Bearer <key>" format
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("unsupported authorization scheme")
	}

	return parts[1], nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
