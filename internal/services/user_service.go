// filepath: internal/services/user_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"lostfound/internal/logging"
	"lostfound/internal/models"
	"lostfound/internal/repository"
	"lostfound/internal/services/auth"
	"lostfound/internal/shared"

	"golang.org/x/crypto/bcrypt"
)

// DefaultAdminPassword is used for the first admin when none is configured.
// The account is created with must_change_password set.
const DefaultAdminPassword = "admin123"

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9._@-]{1,64}$`)

// BootstrapOutcome reports what EnsureDefaultAdmin did.
type BootstrapOutcome int

const (
	// AlreadyPresent: at least one admin existed, nothing was written.
	AlreadyPresent BootstrapOutcome = iota
	// Created: the default admin account was inserted.
	Created
)

func (o BootstrapOutcome) String() string {
	switch o {
	case AlreadyPresent:
		return "already-present"
	case Created:
		return "created"
	default:
		return fmt.Sprintf("BootstrapOutcome(%d)", int(o))
	}
}

// RegisterRequest is the input of Register.
type RegisterRequest struct {
	Actor       string
	Username    string
	Password    string
	DisplayName string
	Role        string
	StoreName   string
}

// UserServiceOptions configures NewUserService.
type UserServiceOptions struct {
	// BcryptCost for new hashes; stored hashes below it are upgraded on login.
	BcryptCost int
	// AdminPassword for the default admin. Empty means DefaultAdminPassword.
	AdminPassword string
	// Policy judges every new password. Nil means auth.DefaultPolicy.
	Policy auth.PasswordPolicy
	// Throttle limits failed logins. Nil disables throttling.
	Throttle *auth.Throttle
}

// Compile-time check to ensure interface is implemented
var _ UserService = (*userService)(nil)

// userService handles business logic for user management.
type userService struct {
	Repo    *repository.Repository
	Auditor Auditor
	opts    UserServiceOptions
	now     func() time.Time

	// afterAdminCount, if set, runs in EnsureDefaultAdmin between finding
	// no admin and inserting one.
	afterAdminCount func()
}

// NewUserService creates a new UserService.
func NewUserService(repo *repository.Repository, auditor Auditor, opts UserServiceOptions) *userService {
	if auditor == nil {
		auditor = noopAuditor{}
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Policy == nil {
		opts.Policy = auth.DefaultPolicy
	}
	return &userService{Repo: repo, Auditor: auditor, opts: opts, now: time.Now}
}

// EnsureDefaultAdmin creates the "admin" account when no user holds the
// admin role, so a fresh install can be logged into. It is safe to call
// from several processes at once: the unique username index lets exactly
// one insert win and the others report AlreadyPresent.
//
// If the username is taken by a non-admin and no admin exists the call
// fails with shared.ErrAdminUsernameTaken; the account is never promoted.
func (s *userService) EnsureDefaultAdmin(ctx context.Context, policy auth.PasswordPolicy) (BootstrapOutcome, error) {
	if policy == nil {
		policy = s.opts.Policy
	}

	password := s.opts.AdminPassword
	if password == "" {
		password = DefaultAdminPassword
	} else if err := policy(password).Err(); err != nil {
		return AlreadyPresent, fmt.Errorf("configured admin password: %w", err)
	}

	outcome := AlreadyPresent
	err := s.Repo.WithConn(ctx, func(c *repository.Repository) error {
		n, err := c.CountAdmins(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logging.Log.Debugf("UserService: %d admin(s) present, skipping bootstrap", n)
			return nil
		}
		if s.afterAdminCount != nil {
			s.afterAdminCount()
		}

		hash, err := auth.HashPassword(password, s.opts.BcryptCost)
		if err != nil {
			return err
		}
		_, err = c.CreateUser(ctx, &models.User{
			Username:           models.DefaultAdminUsername,
			PasswordHash:       hash,
			DisplayName:        "Administrator",
			Role:               models.RoleAdmin,
			MustChangePassword: true,
			CreatedAt:          s.now().UTC(),
		})
		if errors.Is(err, shared.ErrDuplicateUsername) {
			// Either another process bootstrapped first, or the name
			// belongs to an ordinary account.
			n, cerr := c.CountAdmins(ctx)
			if cerr != nil {
				return cerr
			}
			if n > 0 {
				logging.Log.Debugf("UserService: admin created concurrently")
				return nil
			}
			return fmt.Errorf("%w: '%s'", shared.ErrAdminUsernameTaken, models.DefaultAdminUsername)
		}
		if err != nil {
			return err
		}
		outcome = Created
		return nil
	})
	if err != nil {
		return AlreadyPresent, err
	}

	if outcome == Created {
		if s.opts.AdminPassword == "" {
			logging.Log.Warnf("Created admin user '%s' with the default password. It must be changed at first login.", models.DefaultAdminUsername)
		} else {
			logging.Log.Infof("Created admin user '%s' with the configured password.", models.DefaultAdminUsername)
		}
		s.Auditor.Log(ctx, ActionAdminBootstrap, ActorSystem, "user:"+models.DefaultAdminUsername, nil)
	}
	return outcome, nil
}

// Register creates a user after checking name, role and password policy.
func (s *userService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	if !usernameRegex.MatchString(username) {
		return nil, fmt.Errorf("%w: username %q", shared.ErrInvalidName, req.Username)
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if !models.ValidRole(role) {
		return nil, fmt.Errorf("%w: %q", shared.ErrInvalidRole, req.Role)
	}
	if err := s.opts.Policy(req.Password).Err(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password, s.opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	logging.Log.Debugf("UserService: Attempting to create user '%s'", username)
	created, err := s.Repo.CreateUser(ctx, &models.User{
		Username:     username,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Role:         role,
		StoreName:    strings.TrimSpace(req.StoreName),
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.Auditor.Log(ctx, ActionUserCreate, actorOr(req.Actor), "user:"+username, map[string]interface{}{"role": role})
	return created, nil
}

// Authenticate checks a username and password. On success it records the
// login and transparently upgrades a legacy or weak hash.
func (s *userService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if s.opts.Throttle.Locked(username) {
		s.Auditor.Log(ctx, ActionLoginFailed, username, "user:"+username, map[string]interface{}{"reason": "locked"})
		return nil, shared.ErrTooManyAttempts
	}

	user, err := s.Repo.GetUserByUsername(ctx, username)
	if errors.Is(err, shared.ErrUserNotFound) {
		return nil, s.loginFailed(ctx, username, "unknown user")
	}
	if err != nil {
		return nil, err
	}

	ok, needsRehash := auth.VerifyPassword(user.PasswordHash, password, s.opts.BcryptCost)
	if !ok {
		return nil, s.loginFailed(ctx, username, "bad password")
	}
	s.opts.Throttle.Reset(username)

	if needsRehash {
		if hash, err := auth.HashPassword(password, s.opts.BcryptCost); err != nil {
			logging.Log.Warnf("UserService: could not rehash password for '%s': %v", username, err)
		} else if err := s.Repo.UpdatePasswordHash(ctx, user.ID, hash, user.MustChangePassword); err != nil {
			logging.Log.Warnf("UserService: could not store upgraded hash for '%s': %v", username, err)
		} else {
			user.PasswordHash = hash
			logging.Log.Infof("Upgraded password hash for user '%s'", username)
			s.Auditor.Log(ctx, ActionRehash, username, "user:"+username, nil)
		}
	}

	now := s.now().UTC()
	if err := s.Repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		logging.Log.Warnf("UserService: could not record last login for '%s': %v", username, err)
	} else {
		user.LastLogin = now
	}

	s.Auditor.Log(ctx, ActionLogin, username, "user:"+username, nil)
	return user, nil
}

func (s *userService) loginFailed(ctx context.Context, username, reason string) error {
	count := s.opts.Throttle.Fail(username)
	logging.Log.Debugf("UserService: failed login for '%s' (%s, %d in window)", username, reason, count)
	s.Auditor.Log(ctx, ActionLoginFailed, username, "user:"+username, map[string]interface{}{"reason": reason})
	return shared.ErrInvalidCredentials
}

// ChangePassword lets a user replace their own password and clears the
// must-change flag.
func (s *userService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	user, err := s.Repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, shared.ErrUserNotFound) {
		return shared.ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if ok, _ := auth.VerifyPassword(user.PasswordHash, oldPassword, s.opts.BcryptCost); !ok {
		return shared.ErrInvalidCredentials
	}
	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return err
	}
	s.Auditor.Log(ctx, ActionUserPassword, user.Username, "user:"+user.Username, map[string]interface{}{"kind": "change"})
	return nil
}

// ResetPassword sets a user's password from admin tooling.
func (s *userService) ResetPassword(ctx context.Context, actor, username, newPassword string) error {
	user, err := s.Repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return err
	}
	s.Auditor.Log(ctx, ActionUserPassword, actorOr(actor), "user:"+user.Username, map[string]interface{}{"kind": "reset"})
	return nil
}

func (s *userService) setPassword(ctx context.Context, user *models.User, password string) error {
	if err := s.opts.Policy(password).Err(); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return err
	}
	logging.Log.Debugf("UserService: updating password for '%s'", user.Username)
	return s.Repo.UpdatePasswordHash(ctx, user.ID, hash, false)
}

// SetRole changes a user's role. The last admin cannot be demoted.
func (s *userService) SetRole(ctx context.Context, actor, username, role string) error {
	if !models.ValidRole(role) {
		return fmt.Errorf("%w: %q", shared.ErrInvalidRole, role)
	}

	err := s.Repo.WithTx(ctx, func(tx *repository.Repository) error {
		user, err := tx.GetUserByUsername(ctx, strings.TrimSpace(username))
		if err != nil {
			return err
		}
		if user.Role == role {
			return nil
		}
		if user.IsAdmin() {
			if err := guardLastAdmin(ctx, tx); err != nil {
				return err
			}
		}
		return tx.UpdateRole(ctx, user.ID, role)
	})
	if err != nil {
		return err
	}

	s.Auditor.Log(ctx, ActionUserRole, actorOr(actor), "user:"+username, map[string]interface{}{"role": role})
	return nil
}

// DeleteUser removes a user. The last admin cannot be deleted.
func (s *userService) DeleteUser(ctx context.Context, actor, username string) error {
	logging.Log.Debugf("UserService: Deleting user '%s'", username)
	err := s.Repo.WithTx(ctx, func(tx *repository.Repository) error {
		user, err := tx.GetUserByUsername(ctx, strings.TrimSpace(username))
		if err != nil {
			return err
		}
		if user.IsAdmin() {
			if err := guardLastAdmin(ctx, tx); err != nil {
				return err
			}
		}
		return tx.DeleteUser(ctx, user.ID)
	})
	if err != nil {
		return err
	}

	s.Auditor.Log(ctx, ActionUserDelete, actorOr(actor), "user:"+username, nil)
	return nil
}

// guardLastAdmin fails if removing one admin would leave none. It runs
// inside the write transaction, so the count cannot change underneath it.
func guardLastAdmin(ctx context.Context, tx *repository.Repository) error {
	n, err := tx.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return shared.ErrLastAdmin
	}
	return nil
}

// GetUserByUsername retrieves a user by their username.
func (s *userService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.Repo.GetUserByUsername(ctx, strings.TrimSpace(username))
}

// ListUsers retrieves all users.
func (s *userService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.Repo.GetUsers(ctx)
}

func actorOr(actor string) string {
	if actor == "" {
		return ActorSystem
	}
	return actor
}
