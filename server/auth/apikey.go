// Package auth implements API key issuance and the fixed-window ingress
// rate limit. Keys are stored only as SHA-256 hashes; the plaintext is
// returned exactly once at creation or rotation.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/pkg/errors"
)

// apiKeyPrefix marks mnemo keys so leaked credentials are recognizable.
const apiKeyPrefix = "mn_"

// GenerateAPIKey returns a new random API key in plaintext.
func GenerateAPIKey() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "failed to generate api key")
	}
	return apiKeyPrefix + hex.EncodeToString(raw), nil
}

// HashAPIKey returns the hex SHA-256 digest stored for a key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// VerifyAPIKey compares a presented key against a stored hash in constant
// time.
func VerifyAPIKey(key, storedHash string) bool {
	presented := HashAPIKey(key)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(storedHash)) == 1
}
