// filepath: internal/services/auth/interfaces.go
package auth

import (
	"time"

	"lostfound/internal/models"
)

// TokenService defines the contract for session tokens.
type TokenService interface {
	Issue(user *models.User) (token string, expiresAt time.Time, err error)
	Validate(tokenString string) (*SessionClaims, error)
}
