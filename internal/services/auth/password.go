// filepath: internal/services/auth/password.go
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"lostfound/internal/shared"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password the policy accepts.
const MinPasswordLength = 6

// passwordSymbols are the characters counted as the symbol class.
const passwordSymbols = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~"

// PasswordCheck is the verdict of a PasswordPolicy. Reason is empty when Valid.
type PasswordCheck struct {
	Valid  bool
	Reason string
}

// Err returns nil for a valid check and a shared.ErrWeakCredential carrying
// the reason otherwise.
func (c PasswordCheck) Err() error {
	if c.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", shared.ErrWeakCredential, c.Reason)
}

// PasswordPolicy judges a candidate password.
type PasswordPolicy func(candidate string) PasswordCheck

// DefaultPolicy is the policy every password entry point uses.
var DefaultPolicy PasswordPolicy = ValidatePasswordStrength

// ValidatePasswordStrength requires at least MinPasswordLength characters
// from at least two of: uppercase, lowercase, digits, symbols.
func ValidatePasswordStrength(candidate string) PasswordCheck {
	if utf8.RuneCountInString(candidate) < MinPasswordLength {
		return PasswordCheck{Reason: fmt.Sprintf("must be at least %d characters long", MinPasswordLength)}
	}

	var upper, lower, digit, symbol bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}

	classes := 0
	for _, present := range []bool{upper, lower, digit, symbol} {
		if present {
			classes++
		}
	}
	if classes < 2 {
		return PasswordCheck{Reason: "must mix at least two of: uppercase letters, lowercase letters, digits, symbols"}
	}
	return PasswordCheck{Valid: true}
}

// HashPassword hashes password with bcrypt at the given cost.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// IsLegacyDigest reports whether stored is an unsalted hex SHA-256 digest,
// the format older versions wrote.
func IsLegacyDigest(stored string) bool {
	if len(stored) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(stored)
	return err == nil
}

// VerifyPassword checks candidate against a stored hash. needsRehash is set
// on a match when the stored value is a legacy digest or a bcrypt hash
// weaker than cost; the caller should then store a fresh hash.
func VerifyPassword(stored, candidate string, cost int) (ok bool, needsRehash bool) {
	if IsLegacyDigest(stored) {
		sum := sha256.Sum256([]byte(candidate))
		want, _ := hex.DecodeString(stored)
		if subtle.ConstantTimeCompare(sum[:], want) == 1 {
			return true, true
		}
		return false, false
	}

	// Unknown formats fail here the same way as a wrong password.
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)); err != nil {
		return false, false
	}
	if storedCost, err := bcrypt.Cost([]byte(stored)); err == nil && storedCost < cost {
		return true, true
	}
	return true, false
}
