// filepath: internal/models/models.go
// Package models contains the core data structures for the application.
package models

import "time"

// Roles a user can hold.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// DefaultAdminUsername is the well-known account created on first run.
const DefaultAdminUsername = "admin"

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// User represents a user account in the system.
type User struct {
	ID                 int64     `json:"id"`
	Username           string    `json:"username"`
	PasswordHash       string    `json:"-"` // Omit from JSON responses
	DisplayName        string    `json:"display_name"`
	Role               string    `json:"role"`
	StoreName          string    `json:"store_name,omitempty"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
	LastLogin          time.Time `json:"last_login"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Setting is one key/value pair of facility configuration.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
