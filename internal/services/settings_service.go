// filepath: internal/services/settings_service.go
package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"lostfound/internal/logging"
	"lostfound/internal/models"
	"lostfound/internal/repository"
	"lostfound/internal/shared"
)

// Well-known setting keys.
const (
	SettingFacilityName     = "facility_name"
	SettingLocations        = "locations"
	SettingCategories       = "categories"
	SettingSetupCompletedAt = "setup_completed_at"
)

// SeedReport lists which keys SeedDefaults wrote and which already had a value.
type SeedReport struct {
	Inserted []string
	Skipped  []string
}

// Compile-time check to ensure interface is implemented
var _ SettingsService = (*settingsService)(nil)

type settingsService struct {
	Repo    *repository.Repository
	Auditor Auditor
	now     func() time.Time
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(repo *repository.Repository, auditor Auditor) *settingsService {
	if auditor == nil {
		auditor = noopAuditor{}
	}
	return &settingsService{Repo: repo, Auditor: auditor, now: time.Now}
}

// SeedDefaults writes each value whose key has no row yet. Existing values,
// whether defaults from an earlier run or edits, are never overwritten.
func (s *settingsService) SeedDefaults(ctx context.Context, values map[string]string) (SeedReport, error) {
	var report SeedReport
	keys := make([]string, 0, len(values))
	for k := range values {
		if !repository.SafeNameRegex.MatchString(k) {
			return report, fmt.Errorf("%w: setting key %q", shared.ErrInvalidName, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := s.now().UTC()
	err := s.Repo.WithConn(ctx, func(c *repository.Repository) error {
		for _, k := range keys {
			inserted, err := c.InsertSettingIfAbsent(ctx, k, values[k], now)
			if err != nil {
				return err
			}
			if inserted {
				report.Inserted = append(report.Inserted, k)
			} else {
				report.Skipped = append(report.Skipped, k)
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	logging.Log.Debugf("SettingsService: seeded %d setting(s), kept %d existing", len(report.Inserted), len(report.Skipped))
	return report, nil
}

// Get returns one setting.
func (s *settingsService) Get(ctx context.Context, key string) (*models.Setting, error) {
	return s.Repo.GetSetting(ctx, key)
}

// Set stores value under key, replacing any existing value.
func (s *settingsService) Set(ctx context.Context, actor, key, value string) error {
	if !repository.SafeNameRegex.MatchString(key) {
		return fmt.Errorf("%w: setting key %q", shared.ErrInvalidName, key)
	}
	if err := s.Repo.SetSetting(ctx, key, value, s.now().UTC()); err != nil {
		return err
	}
	s.Auditor.Log(ctx, ActionSettingSet, actorOr(actor), "setting:"+key, nil)
	return nil
}

// List returns all settings ordered by key.
func (s *settingsService) List(ctx context.Context) ([]models.Setting, error) {
	return s.Repo.GetSettings(ctx)
}
