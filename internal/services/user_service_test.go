// filepath: internal/services/user_service_test.go
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lostfound/internal/models"
	"lostfound/internal/repository"
	"lostfound/internal/services/auth"
	"lostfound/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func openRepo(t *testing.T, path string) *repository.Repository {
	t.Helper()
	repo, err := repository.Open(context.Background(), path, repository.Options{LockTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	_, err = repo.EvolveAll(context.Background(), repository.OwnedTables()...)
	require.NoError(t, err)
	return repo
}

type mockAuditor struct {
	mock.Mock
}

func (m *mockAuditor) Log(ctx context.Context, action string, actor string, resource string, details map[string]interface{}) {
	m.Called(ctx, action, actor, resource, details)
}

func newAuditor() *mockAuditor {
	a := &mockAuditor{}
	a.On("Log", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
	return a
}

func setupUserService(t *testing.T, opts UserServiceOptions) (*userService, *repository.Repository, *mockAuditor) {
	t.Helper()
	repo := openRepo(t, filepath.Join(t.TempDir(), "users.db"))
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.MinCost
	}
	auditor := newAuditor()
	return NewUserService(repo, auditor, opts), repo, auditor
}

func countAdmins(t *testing.T, repo *repository.Repository) int {
	t.Helper()
	n, err := repo.CountAdmins(context.Background())
	require.NoError(t, err)
	return n
}

func TestEnsureDefaultAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates the default admin once", func(t *testing.T) {
		svc, repo, auditor := setupUserService(t, UserServiceOptions{})

		outcome, err := svc.EnsureDefaultAdmin(ctx, auth.DefaultPolicy)
		require.NoError(t, err)
		assert.Equal(t, Created, outcome)

		admin, err := repo.GetUserByUsername(ctx, models.DefaultAdminUsername)
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, admin.Role)
		assert.True(t, admin.MustChangePassword)
		ok, _ := auth.VerifyPassword(admin.PasswordHash, DefaultAdminPassword, bcrypt.MinCost)
		assert.True(t, ok)
		auditor.AssertCalled(t, "Log", mock.Anything, ActionAdminBootstrap, ActorSystem, "user:admin", mock.Anything)

		for i := 0; i < 5; i++ {
			outcome, err = svc.EnsureDefaultAdmin(ctx, auth.DefaultPolicy)
			require.NoError(t, err)
			assert.Equal(t, AlreadyPresent, outcome)
		}
		assert.Equal(t, 1, countAdmins(t, repo))
	})

	t.Run("Uses a configured password", func(t *testing.T) {
		svc, repo, _ := setupUserService(t, UserServiceOptions{AdminPassword: "Str0ng!pw"})

		outcome, err := svc.EnsureDefaultAdmin(ctx, auth.DefaultPolicy)
		require.NoError(t, err)
		assert.Equal(t, Created, outcome)

		admin, err := repo.GetUserByUsername(ctx, models.DefaultAdminUsername)
		require.NoError(t, err)
		ok, _ := auth.VerifyPassword(admin.PasswordHash, "Str0ng!pw", bcrypt.MinCost)
		assert.True(t, ok)
	})

	t.Run("Refuses a weak configured password", func(t *testing.T) {
		svc, repo, _ := setupUserService(t, UserServiceOptions{AdminPassword: "abcdef"})

		_, err := svc.EnsureDefaultAdmin(ctx, auth.DefaultPolicy)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrWeakCredential)
		assert.Equal(t, 0, countAdmins(t, repo))
	})

	t.Run("Another admin is enough", func(t *testing.T) {
		svc, repo, _ := setupUserService(t, UserServiceOptions{})
		_, err := repo.CreateUser(ctx, &models.User{Username: "boss", PasswordHash: "x", Role: models.RoleAdmin})
		require.NoError(t, err)

		outcome, err := svc.EnsureDefaultAdmin(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, AlreadyPresent, outcome)

		exists, err := repo.UserExists(ctx, models.DefaultAdminUsername)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Admin name held by a regular user", func(t *testing.T) {
		svc, repo, _ := setupUserService(t, UserServiceOptions{})
		_, err := repo.CreateUser(ctx, &models.User{Username: models.DefaultAdminUsername, PasswordHash: "x", Role: models.RoleUser})
		require.NoError(t, err)

		_, err = svc.EnsureDefaultAdmin(ctx, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrAdminUsernameTaken)

		u, err := repo.GetUserByUsername(ctx, models.DefaultAdminUsername)
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, u.Role, "never promoted")
	})
}

func TestEnsureDefaultAdminConcurrentHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "race.db")

	svcs := []*userService{
		NewUserService(openRepo(t, path), nil, UserServiceOptions{BcryptCost: bcrypt.MinCost}),
		NewUserService(openRepo(t, path), nil, UserServiceOptions{BcryptCost: bcrypt.MinCost}),
	}

	outcomes := make([]BootstrapOutcome, len(svcs))
	errs := make([]error, len(svcs))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, svc := range svcs {
		wg.Add(1)
		go func(i int, svc *userService) {
			defer wg.Done()
			<-start
			outcomes[i], errs[i] = svc.EnsureDefaultAdmin(ctx, nil)
		}(i, svc)
	}
	close(start)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.ElementsMatch(t, []BootstrapOutcome{Created, AlreadyPresent}, outcomes)
	assert.Equal(t, 1, countAdmins(t, svcs[0].Repo))
}

func TestEnsureDefaultAdminLosesInsertRace(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "race.db")
	other := openRepo(t, path)
	svc := NewUserService(openRepo(t, path), nil, UserServiceOptions{BcryptCost: bcrypt.MinCost})

	// Another process inserts the admin after this one counted zero admins.
	svc.afterAdminCount = func() {
		_, err := other.CreateUser(ctx, &models.User{Username: models.DefaultAdminUsername, PasswordHash: "x", Role: models.RoleAdmin})
		require.NoError(t, err)
	}

	outcome, err := svc.EnsureDefaultAdmin(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, AlreadyPresent, outcome)
	assert.Equal(t, 1, countAdmins(t, other))

	admin, err := other.GetUserByUsername(ctx, models.DefaultAdminUsername)
	require.NoError(t, err)
	assert.Equal(t, "x", admin.PasswordHash, "the winner's row is kept")
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, _, auditor := setupUserService(t, UserServiceOptions{})

	u, err := svc.Register(ctx, RegisterRequest{Actor: "admin", Username: "  carol ", Password: "Carol1", DisplayName: "Carol", StoreName: "Lobby"})
	require.NoError(t, err)
	assert.Equal(t, "carol", u.Username)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Equal(t, "Lobby", u.StoreName)
	auditor.AssertCalled(t, "Log", mock.Anything, ActionUserCreate, "admin", "user:carol", mock.Anything)

	tests := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"duplicate", RegisterRequest{Username: "carol", Password: "Carol1"}, shared.ErrDuplicateUsername},
		{"weak password", RegisterRequest{Username: "dave", Password: "abc"}, shared.ErrWeakCredential},
		{"single class", RegisterRequest{Username: "dave", Password: "abcdefgh"}, shared.ErrWeakCredential},
		{"empty name", RegisterRequest{Username: "  ", Password: "Dave12"}, shared.ErrInvalidName},
		{"bad name", RegisterRequest{Username: "dave smith", Password: "Dave12"}, shared.ErrInvalidName},
		{"bad role", RegisterRequest{Username: "dave", Password: "Dave12", Role: "root"}, shared.ErrInvalidRole},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("Success records the login", func(t *testing.T) {
		svc, repo, auditor := setupUserService(t, UserServiceOptions{})
		_, err := svc.Register(ctx, RegisterRequest{Username: "erin", Password: "Erin12"})
		require.NoError(t, err)

		u, err := svc.Authenticate(ctx, "erin", "Erin12")
		require.NoError(t, err)
		assert.False(t, u.LastLogin.IsZero())

		stored, err := repo.GetUserByUsername(ctx, "erin")
		require.NoError(t, err)
		assert.False(t, stored.LastLogin.IsZero())
		auditor.AssertCalled(t, "Log", mock.Anything, ActionLogin, "erin", "user:erin", mock.Anything)
	})

	t.Run("Wrong password and unknown user look the same", func(t *testing.T) {
		svc, _, auditor := setupUserService(t, UserServiceOptions{})
		_, err := svc.Register(ctx, RegisterRequest{Username: "erin", Password: "Erin12"})
		require.NoError(t, err)

		_, err = svc.Authenticate(ctx, "erin", "nope")
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
		_, err = svc.Authenticate(ctx, "ghost", "nope")
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
		auditor.AssertNumberOfCalls(t, "Log", 3) // create + two failures
	})

	t.Run("Throttled after repeated failures", func(t *testing.T) {
		svc, _, _ := setupUserService(t, UserServiceOptions{Throttle: auth.NewThrottle(2, time.Minute)})
		_, err := svc.Register(ctx, RegisterRequest{Username: "erin", Password: "Erin12"})
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			_, err = svc.Authenticate(ctx, "erin", "nope")
			assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
		}
		// Even the right password is refused while locked.
		_, err = svc.Authenticate(ctx, "erin", "Erin12")
		assert.ErrorIs(t, err, shared.ErrTooManyAttempts)
	})

	t.Run("Success resets the failure count", func(t *testing.T) {
		svc, _, _ := setupUserService(t, UserServiceOptions{Throttle: auth.NewThrottle(2, time.Minute)})
		_, err := svc.Register(ctx, RegisterRequest{Username: "erin", Password: "Erin12"})
		require.NoError(t, err)

		_, err = svc.Authenticate(ctx, "erin", "nope")
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
		_, err = svc.Authenticate(ctx, "erin", "Erin12")
		require.NoError(t, err)
		_, err = svc.Authenticate(ctx, "erin", "nope")
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
		_, err = svc.Authenticate(ctx, "erin", "Erin12")
		assert.NoError(t, err)
	})

	t.Run("Legacy digest is upgraded on login", func(t *testing.T) {
		svc, repo, auditor := setupUserService(t, UserServiceOptions{})
		sum := sha256.Sum256([]byte("oldpass"))
		_, err := repo.CreateUser(ctx, &models.User{Username: "frank", PasswordHash: hex.EncodeToString(sum[:]), Role: models.RoleUser})
		require.NoError(t, err)

		_, err = svc.Authenticate(ctx, "frank", "oldpass")
		require.NoError(t, err)

		stored, err := repo.GetUserByUsername(ctx, "frank")
		require.NoError(t, err)
		assert.False(t, auth.IsLegacyDigest(stored.PasswordHash))
		cost, err := bcrypt.Cost([]byte(stored.PasswordHash))
		require.NoError(t, err)
		assert.Equal(t, bcrypt.MinCost, cost)
		auditor.AssertCalled(t, "Log", mock.Anything, ActionRehash, "frank", "user:frank", mock.Anything)

		// And the new hash still works.
		_, err = svc.Authenticate(ctx, "frank", "oldpass")
		require.NoError(t, err)
	})

	t.Run("Weak bcrypt cost is upgraded on login", func(t *testing.T) {
		svc, repo, _ := setupUserService(t, UserServiceOptions{BcryptCost: bcrypt.MinCost + 1})
		hash, err := auth.HashPassword("Grace1", bcrypt.MinCost)
		require.NoError(t, err)
		_, err = repo.CreateUser(ctx, &models.User{Username: "grace", PasswordHash: hash, Role: models.RoleUser, MustChangePassword: true})
		require.NoError(t, err)

		_, err = svc.Authenticate(ctx, "grace", "Grace1")
		require.NoError(t, err)

		stored, err := repo.GetUserByUsername(ctx, "grace")
		require.NoError(t, err)
		cost, err := bcrypt.Cost([]byte(stored.PasswordHash))
		require.NoError(t, err)
		assert.Equal(t, bcrypt.MinCost+1, cost)
		assert.True(t, stored.MustChangePassword, "rehash keeps the must-change flag")
	})
}

func TestPasswordChanges(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setupUserService(t, UserServiceOptions{})
	_, err := svc.EnsureDefaultAdmin(ctx, nil)
	require.NoError(t, err)

	t.Run("Change requires the old password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, "admin", "wrong", "N3wAdmin!")
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	})

	t.Run("Change enforces the policy", func(t *testing.T) {
		err := svc.ChangePassword(ctx, "admin", DefaultAdminPassword, "short")
		assert.ErrorIs(t, err, shared.ErrWeakCredential)
	})

	t.Run("Change clears the must-change flag", func(t *testing.T) {
		require.NoError(t, svc.ChangePassword(ctx, "admin", DefaultAdminPassword, "N3wAdmin!"))
		u, err := repo.GetUserByUsername(ctx, "admin")
		require.NoError(t, err)
		assert.False(t, u.MustChangePassword)

		_, err = svc.Authenticate(ctx, "admin", "N3wAdmin!")
		assert.NoError(t, err)
	})

	t.Run("Reset", func(t *testing.T) {
		require.NoError(t, svc.ResetPassword(ctx, "ops", "admin", "R3set!pw"))
		_, err := svc.Authenticate(ctx, "admin", "R3set!pw")
		assert.NoError(t, err)

		assert.ErrorIs(t, svc.ResetPassword(ctx, "ops", "admin", "weak"), shared.ErrWeakCredential)
		assert.ErrorIs(t, svc.ResetPassword(ctx, "ops", "ghost", "R3set!pw"), shared.ErrUserNotFound)
	})
}

func TestLastAdminGuards(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setupUserService(t, UserServiceOptions{})
	_, err := svc.EnsureDefaultAdmin(ctx, nil)
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterRequest{Username: "henry", Password: "Henry1"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.SetRole(ctx, "admin", "admin", models.RoleUser), shared.ErrLastAdmin)
	assert.ErrorIs(t, svc.DeleteUser(ctx, "admin", "admin"), shared.ErrLastAdmin)
	assert.ErrorIs(t, svc.SetRole(ctx, "admin", "henry", "owner"), shared.ErrInvalidRole)
	assert.ErrorIs(t, svc.DeleteUser(ctx, "admin", "ghost"), shared.ErrUserNotFound)

	// With a second admin the first can step down.
	require.NoError(t, svc.SetRole(ctx, "admin", "henry", models.RoleAdmin))
	require.NoError(t, svc.SetRole(ctx, "henry", "admin", models.RoleUser))
	assert.Equal(t, 1, countAdmins(t, repo))
	require.NoError(t, svc.DeleteUser(ctx, "henry", "admin"))

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "henry", users[0].Username)
	assert.ErrorIs(t, svc.DeleteUser(ctx, "henry", "henry"), shared.ErrLastAdmin)
}

func TestBootstrapOutcomeString(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "already-present", AlreadyPresent.String())
}
