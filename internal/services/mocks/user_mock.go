// filepath: internal/services/mocks/user_mock.go
package mocks

import (
	"context"

	"lostfound/internal/models"
	"lostfound/internal/services"
	"lostfound/internal/services/auth"

	"github.com/stretchr/testify/mock"
)

// MockUserService is a mock implementation of services.UserService
type MockUserService struct {
	mock.Mock
}

// Compile-time check to ensure interface compliance
var _ services.UserService = (*MockUserService)(nil)

func (m *MockUserService) EnsureDefaultAdmin(ctx context.Context, policy auth.PasswordPolicy) (services.BootstrapOutcome, error) {
	args := m.Called(ctx, policy)
	return args.Get(0).(services.BootstrapOutcome), args.Error(1)
}

func (m *MockUserService) Register(ctx context.Context, req services.RegisterRequest) (*models.User, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	args := m.Called(ctx, username, oldPassword, newPassword)
	return args.Error(0)
}

func (m *MockUserService) ResetPassword(ctx context.Context, actor, username, newPassword string) error {
	args := m.Called(ctx, actor, username, newPassword)
	return args.Error(0)
}

func (m *MockUserService) SetRole(ctx context.Context, actor, username, role string) error {
	args := m.Called(ctx, actor, username, role)
	return args.Error(0)
}

func (m *MockUserService) DeleteUser(ctx context.Context, actor, username string) error {
	args := m.Called(ctx, actor, username)
	return args.Error(0)
}

func (m *MockUserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}
