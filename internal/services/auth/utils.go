// filepath: internal/services/auth/utils.go
package auth

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateSecret creates a cryptographically secure random string.
// Used by the CLI when no JWT secret is configured; the result is persisted
// to the config file so tokens survive restarts.
func GenerateSecret() (string, error) {
	bytes := make([]byte, 32) // 256 bits
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
