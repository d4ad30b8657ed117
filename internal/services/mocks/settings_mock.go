// filepath: internal/services/mocks/settings_mock.go
package mocks

import (
	"context"

	"lostfound/internal/models"
	"lostfound/internal/services"

	"github.com/stretchr/testify/mock"
)

// MockSettingsService is a mock implementation of services.SettingsService
type MockSettingsService struct {
	mock.Mock
}

var _ services.SettingsService = (*MockSettingsService)(nil)

func (m *MockSettingsService) SeedDefaults(ctx context.Context, values map[string]string) (services.SeedReport, error) {
	args := m.Called(ctx, values)
	return args.Get(0).(services.SeedReport), args.Error(1)
}

func (m *MockSettingsService) Get(ctx context.Context, key string) (*models.Setting, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Setting), args.Error(1)
}

func (m *MockSettingsService) Set(ctx context.Context, actor, key, value string) error {
	args := m.Called(ctx, actor, key, value)
	return args.Error(0)
}

func (m *MockSettingsService) List(ctx context.Context) ([]models.Setting, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Setting), args.Error(1)
}
