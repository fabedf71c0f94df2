// Package secrets generates and verifies the credential material used by the
// API: client API keys, opaque access and reset tokens, and password hashes.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"github.com/pkg/errors"
)

const (
	apiKeyPrefix = "sk_"
	apiKeyBytes  = 48
	tokenBytes   = 32
)

// GenerateAPIKey returns a new API key in its presentable form. The key is
// shown to the caller once; only its digest is stored.
func GenerateAPIKey() (string, error) {
	raw := make([]byte, apiKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "failed to generate api key")
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// GenerateToken returns a new opaque token for access or password reset use.
func GenerateToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "failed to generate token")
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Digest returns the hex digest a secret is stored and looked up under.
// Storing digests keeps raw credentials out of the database.
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// DigestEqual compares a candidate secret against a stored digest in
// constant time.
func DigestEqual(secret, storedDigest string) bool {
	candidate := Digest(secret)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedDigest)) == 1
}
