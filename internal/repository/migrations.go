// filepath: internal/repository/migrations.go
package repository

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"time"

	"lostfound/internal/db/migrations"
	"lostfound/internal/logging"

	"github.com/pressly/goose/v3"
)

// MigrationState is one post-evolution migration and whether it has run.
type MigrationState struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

func (r *Repository) migrationProvider(fsys fs.FS) (*goose.Provider, error) {
	if fsys == nil {
		fsys = migrations.FS
	}
	return goose.NewProvider(goose.DialectSQLite3, r.DB, fsys)
}

// MigrateUp applies pending index and data migrations. They assume the
// current columns, so callers evolve the owned tables first.
func (r *Repository) MigrateUp(ctx context.Context) ([]MigrationState, error) {
	return r.migrateUp(ctx, nil)
}

func (r *Repository) migrateUp(ctx context.Context, fsys fs.FS) ([]MigrationState, error) {
	applied, err := r.runMigrations(ctx, fsys)
	if err != nil && !isUnavailable(err) {
		// Two processes opening a fresh store can race on goose's version
		// table. The migrations themselves are idempotent, so one retry
		// settles it.
		logging.Log.Warnf("Migrations failed (%v), retrying once", err)
		applied, err = r.runMigrations(ctx, fsys)
	}
	if err != nil {
		return applied, schemaConflict("migrations", "apply", err)
	}
	return applied, nil
}

func (r *Repository) runMigrations(ctx context.Context, fsys fs.FS) ([]MigrationState, error) {
	provider, err := r.migrationProvider(fsys)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	applied := make([]MigrationState, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil || res.Error != nil {
			continue
		}
		logging.Log.Infof("Applied migration %d (%s) in %s", res.Source.Version, path.Base(res.Source.Path), res.Duration)
		applied = append(applied, MigrationState{
			Version:   res.Source.Version,
			Name:      path.Base(res.Source.Path),
			Applied:   true,
			AppliedAt: time.Now().UTC(),
		})
	}
	return applied, err
}

// MigrationStatus lists every known migration and whether it has been
// applied. It does not write, so it works on a read-only handle: without a
// version table every migration is pending.
func (r *Repository) MigrationStatus(ctx context.Context) ([]MigrationState, error) {
	provider, err := r.migrationProvider(nil)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}

	tracked, err := r.TableExists(ctx, goose.DefaultTablename)
	if err != nil {
		return nil, err
	}
	if !tracked {
		sources := provider.ListSources()
		states := make([]MigrationState, 0, len(sources))
		for _, src := range sources {
			states = append(states, MigrationState{Version: src.Version, Name: path.Base(src.Path)})
		}
		return states, nil
	}

	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, Classify(fmt.Errorf("read migration status: %w", err))
	}

	states := make([]MigrationState, 0, len(statuses))
	for _, st := range statuses {
		states = append(states, MigrationState{
			Version:   st.Source.Version,
			Name:      path.Base(st.Source.Path),
			Applied:   st.State == goose.StateApplied,
			AppliedAt: st.AppliedAt,
		})
	}
	return states, nil
}
