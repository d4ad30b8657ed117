// filepath: internal/bootstrap/bootstrap.go

// Package bootstrap runs the startup chain every entry point shares: resolve
// the storage layout, adopt a legacy database, open the store, evolve the
// schema, apply index migrations and make sure an admin exists.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lostfound/internal/config"
	"lostfound/internal/logging"
	"lostfound/internal/repository"
	"lostfound/internal/services"
	"lostfound/internal/services/auth"
	"lostfound/internal/storage"
)

// Options configures Open.
type Options struct {
	// Root is the storage root. Empty falls back to LOSTFOUND_ROOT, then the platform default.
	Root string
	// Config supplies lock timeout, security and setup values. Nil means defaults.
	Config *config.Config
	// ExtraTables are evolved after the owned tables, for features that
	// keep their own tables in the same store.
	ExtraTables []repository.TableSchema
	// SkipAdmin leaves out the admin bootstrap, e.g. for read-only status commands.
	SkipAdmin bool
	// Auditor receives audit events. Nil drops them.
	Auditor services.Auditor
}

// Runtime is an opened, evolved store plus the services built on it.
type Runtime struct {
	Location   storage.StorageLocation
	Config     *config.Config
	Repo       *repository.Repository
	Legacy     storage.MigrationOutcome
	Evolution  []repository.EvolutionReport
	Migrations []repository.MigrationState
	Admin      services.BootstrapOutcome

	Users    services.UserService
	Settings services.SettingsService
}

// Open runs the startup chain. On error nothing is left open.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
		if err := cfg.ParseAndValidate(); err != nil {
			return nil, err
		}
	}

	loc, err := storage.ResolveLocations(opts.Root)
	if err != nil {
		return nil, err
	}
	legacy, err := storage.MigrateLegacyIfNeeded(loc)
	if err != nil {
		return nil, err
	}
	logging.Log.Debugf("Bootstrap: store %s, legacy check %s", loc.DatabasePath, legacy)

	repo, err := repository.Open(ctx, loc.DatabasePath, repository.Options{LockTimeout: cfg.LockTimeout})
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Location: loc, Config: cfg, Repo: repo, Legacy: legacy}
	if err := rt.prepare(ctx, opts); err != nil {
		repo.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) prepare(ctx context.Context, opts Options) error {
	tables := append(repository.OwnedTables(), opts.ExtraTables...)
	reports, err := rt.Repo.EvolveAll(ctx, tables...)
	rt.Evolution = reports
	if err != nil {
		return err
	}

	if rt.Migrations, err = rt.Repo.MigrateUp(ctx); err != nil {
		return err
	}

	cfg := rt.Config
	rt.Users = services.NewUserService(rt.Repo, opts.Auditor, services.UserServiceOptions{
		BcryptCost:    cfg.Security.BcryptCost,
		AdminPassword: cfg.Security.AdminPassword,
		Policy:        auth.DefaultPolicy,
		Throttle:      auth.NewThrottle(cfg.Security.MaxFailedLogins, cfg.Lockout),
	})
	rt.Settings = services.NewSettingsService(rt.Repo, opts.Auditor)

	if opts.SkipAdmin {
		return nil
	}
	rt.Admin, err = rt.Users.EnsureDefaultAdmin(ctx, auth.DefaultPolicy)
	return err
}

// Close closes the store.
func (rt *Runtime) Close() error {
	if rt == nil || rt.Repo == nil {
		return nil
	}
	return rt.Repo.Close()
}

// SetupDefaults turns the [setup] config section into setting values.
// Lists are stored as JSON arrays.
func SetupDefaults(cfg *config.Config) (map[string]string, error) {
	values := map[string]string{}
	if cfg == nil {
		return values, nil
	}
	if cfg.Setup.FacilityName != "" {
		values[services.SettingFacilityName] = cfg.Setup.FacilityName
	}
	for key, list := range map[string][]string{
		services.SettingLocations:  cfg.Setup.Locations,
		services.SettingCategories: cfg.Setup.Categories,
	} {
		if list == nil {
			list = []string{}
		}
		b, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		values[key] = string(b)
	}
	return values, nil
}

// Setup seeds default settings and records when setup first completed.
// Values that already exist are kept, so running setup again changes nothing
// a user has edited.
func Setup(ctx context.Context, rt *Runtime, seed map[string]string) (services.SeedReport, error) {
	values := make(map[string]string, len(seed)+1)
	for k, v := range seed {
		values[k] = v
	}
	values[services.SettingSetupCompletedAt] = time.Now().UTC().Format(time.RFC3339Nano)

	report, err := rt.Settings.SeedDefaults(ctx, values)
	if err != nil {
		return report, err
	}
	logging.Log.Infof("Setup complete: %d setting(s) seeded, %d kept", len(report.Inserted), len(report.Skipped))
	return report, nil
}
