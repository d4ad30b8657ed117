// filepath: internal/services/interfaces.go
package services

import (
	"context"

	"lostfound/internal/models"
	"lostfound/internal/services/auth"
)

// Auditor defines the interface for recording security-relevant events.
type Auditor interface {
	// Log records an event.
	// action: what happened (e.g., "user.create", "auth.login")
	// actor: who did it (username, or "system" during bootstrap)
	// resource: what was affected (e.g., "user:alice", "setting:facility_name")
	// details: structured metadata about the event
	Log(ctx context.Context, action string, actor string, resource string, details map[string]interface{})
}

// UserService defines the interface for the user service.
type UserService interface {
	EnsureDefaultAdmin(ctx context.Context, policy auth.PasswordPolicy) (BootstrapOutcome, error)
	Register(ctx context.Context, req RegisterRequest) (*models.User, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
	ResetPassword(ctx context.Context, actor, username, newPassword string) error
	SetRole(ctx context.Context, actor, username, role string) error
	DeleteUser(ctx context.Context, actor, username string) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// SettingsService defines the interface for the settings service.
type SettingsService interface {
	SeedDefaults(ctx context.Context, values map[string]string) (SeedReport, error)
	Get(ctx context.Context, key string) (*models.Setting, error)
	Set(ctx context.Context, actor, key, value string) error
	List(ctx context.Context) ([]models.Setting, error)
}
