// filepath: internal/repository/user_repo.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lostfound/internal/logging"
	"lostfound/internal/models"
	"lostfound/internal/shared"

	"github.com/Masterminds/squirrel"
)

var userColumns = []string{
	"id", "username", "password_hash", "display_name", "role",
	"store_name", "must_change_password", "created_at", "last_login",
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one users row. Columns added by evolution may hold NULL in
// rows written by older versions, so everything is scanned nullable.
func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var username, hash, displayName, role, store sql.NullString
	var createdAt, lastLogin sql.NullString
	var mustChange sql.NullInt64
	if err := row.Scan(&user.ID, &username, &hash, &displayName, &role, &store, &mustChange, &createdAt, &lastLogin); err != nil {
		return nil, err
	}
	user.Username = username.String
	user.PasswordHash = hash.String
	user.DisplayName = displayName.String
	user.Role = role.String
	user.StoreName = store.String
	user.MustChangePassword = mustChange.Int64 != 0
	user.CreatedAt = parseTime(createdAt)
	user.LastLogin = parseTime(lastLogin)
	return &user, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CountAdmins returns the number of users holding the admin role.
func (r *Repository) CountAdmins(ctx context.Context) (int, error) {
	row, err := r.queryRow(ctx, r.Builder.Select("count(*)").From(UsersTableName).Where(squirrel.Eq{"role": models.RoleAdmin}))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, Classify(fmt.Errorf("count admins: %w", err))
	}
	return n, nil
}

// CreateUser inserts a user whose password is already hashed. A taken
// username fails with shared.ErrDuplicateUsername.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	var store sql.NullString
	if user.StoreName != "" {
		store = sql.NullString{String: user.StoreName, Valid: true}
	}

	logging.Log.Debugf("CreateUser: inserting '%s' with role '%s'", user.Username, user.Role)
	res, err := r.exec(ctx, r.Builder.Insert(UsersTableName).
		Columns("username", "password_hash", "display_name", "role", "store_name", "must_change_password", "created_at").
		Values(user.Username, user.PasswordHash, user.DisplayName, user.Role, store, boolInt(user.MustChangePassword), formatTime(user.CreatedAt)))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", shared.ErrDuplicateUsername, user.Username)
		}
		return nil, Classify(fmt.Errorf("create user %s: %w", user.Username, err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	created := *user
	created.ID = id
	logging.Log.Debugf("CreateUser: User '%s' created with ID %d", user.Username, id)
	return &created, nil
}

// GetUserByUsername looks a user up by exact username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUser(ctx, squirrel.Eq{"username": username})
}

// GetUserByID looks a user up by id.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, squirrel.Eq{"id": id})
}

func (r *Repository) getUser(ctx context.Context, where squirrel.Eq) (*models.User, error) {
	row, err := r.queryRow(ctx, r.Builder.Select(userColumns...).From(UsersTableName).Where(where).Limit(1))
	if err != nil {
		return nil, err
	}
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, Classify(fmt.Errorf("get user: %w", err))
	}
	return user, nil
}

// UserExists checks if a user with the given username exists.
func (r *Repository) UserExists(ctx context.Context, username string) (bool, error) {
	_, err := r.GetUserByUsername(ctx, username)
	if errors.Is(err, shared.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetUsers returns all users ordered by username.
func (r *Repository) GetUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.query(ctx, r.Builder.Select(userColumns...).From(UsersTableName).OrderBy("username"))
	if err != nil {
		return nil, Classify(fmt.Errorf("list users: %w", err))
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, Classify(fmt.Errorf("list users: %w", err))
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(fmt.Errorf("list users: %w", err))
	}
	return users, nil
}

// UpdatePasswordHash stores a new hash and sets the must-change flag.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id int64, hash string, mustChange bool) error {
	logging.Log.Debugf("UpdatePasswordHash: updating hash for user ID %d", id)
	return r.updateUser(ctx, id, map[string]any{
		"password_hash":        hash,
		"must_change_password": boolInt(mustChange),
	})
}

// UpdateRole sets a user's role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, role string) error {
	logging.Log.Debugf("UpdateRole: setting role '%s' for user ID %d", role, id)
	return r.updateUser(ctx, id, map[string]any{"role": role})
}

// TouchLastLogin records a successful login.
func (r *Repository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.updateUser(ctx, id, map[string]any{"last_login": formatTime(at)})
}

func (r *Repository) updateUser(ctx context.Context, id int64, set map[string]any) error {
	res, err := r.exec(ctx, r.Builder.Update(UsersTableName).SetMap(set).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return Classify(fmt.Errorf("update user %d: %w", id, err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user by id.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	res, err := r.exec(ctx, r.Builder.Delete(UsersTableName).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return Classify(fmt.Errorf("delete user %d: %w", id, err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}
