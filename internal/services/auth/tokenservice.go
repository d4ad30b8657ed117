// filepath: internal/services/auth/tokenservice.go
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"lostfound/internal/models"
	"lostfound/internal/shared"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "lostfound"

// DefaultSessionDuration applies when no session length is configured.
const DefaultSessionDuration = 12 * time.Hour

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the numeric user id stored in the subject claim.
func (c *SessionClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Compile-time check to ensure tokenService implements the TokenService interface.
var _ TokenService = (*tokenService)(nil)

type tokenService struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

// NewTokenService creates a TokenService signing HS256 tokens with secret.
func NewTokenService(secret string, duration time.Duration) (TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &tokenService{secret: []byte(secret), duration: duration, now: time.Now}, nil
}

// Issue signs a session token for user.
func (s *tokenService) Issue(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiry := now.Add(s.duration)
	claims := &SessionClaims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(user.ID, 10), // Store user ID in 'sub' claim
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiry, nil
}

// Validate checks signature, method, issuer and expiry. Every failure wraps
// shared.ErrInvalidToken.
func (s *tokenService) Validate(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidToken, err) // Handles expired tokens as well
	}
	if !token.Valid {
		return nil, shared.ErrInvalidToken
	}
	return claims, nil
}
