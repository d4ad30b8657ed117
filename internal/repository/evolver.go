// filepath: internal/repository/evolver.go
package repository

import (
	"context"
	"fmt"
	"strings"

	"lostfound/internal/logging"
	"lostfound/internal/shared"
)

// EvolutionReport describes what Evolve changed in one table.
type EvolutionReport struct {
	Table          string
	TableCreated   bool
	ColumnsAdded   []string
	AlreadyCurrent bool
}

// Evolve brings the live table forward to schema: it creates the table if
// absent, adds every missing column and ensures the unique indexes. It never
// drops, renames or retypes anything, and running it again is a no-op.
//
// Each DDL statement commits on its own, so a concurrent process doing the
// same work can only make a statement redundant. Evolution stops at the
// first statement that fails for any other reason.
func (r *Repository) Evolve(ctx context.Context, schema TableSchema) (EvolutionReport, error) {
	report := EvolutionReport{Table: schema.Name}
	if err := schema.Validate(); err != nil {
		return report, err
	}

	err := r.WithConn(ctx, func(c *Repository) error {
		existed, err := c.TableExists(ctx, schema.Name)
		if err != nil {
			return err
		}
		if !existed {
			logging.Log.Debugf("Evolve: creating table %s", schema.Name)
			if _, err := c.db.ExecContext(ctx, schema.createSQL()); err != nil {
				return schemaConflict(schema.Name, "create table", err)
			}
			report.TableCreated = true
		}

		live, err := c.LiveColumns(ctx, schema.Name)
		if err != nil {
			return err
		}

		for _, col := range schema.Columns {
			if lc, ok := live.Get(col.Name); ok {
				if !strings.EqualFold(lc.Type, string(col.Type)) {
					logging.Log.Warnf("Evolve: column %s.%s is %s, wanted %s; leaving it", schema.Name, lc.Name, lc.Type, col.Type)
				}
				continue
			}
			if col.PrimaryKey {
				return fmt.Errorf("%w: table %s has no primary key column %q and SQLite cannot add one", shared.ErrSchemaConflict, schema.Name, col.Name)
			}

			if _, err := c.db.ExecContext(ctx, schema.addColumnSQL(col)); err != nil {
				if isDuplicateColumn(err) {
					logging.Log.Debugf("Evolve: column %s.%s was added concurrently", schema.Name, col.Name)
					continue
				}
				return schemaConflict(schema.Name, "add column "+col.Name+" to", err)
			}
			report.ColumnsAdded = append(report.ColumnsAdded, col.Name)
			logging.Log.Infof("Added column %s.%s (%s)", schema.Name, col.Name, col.Type)
		}

		for _, col := range schema.Columns {
			if !col.Unique {
				continue
			}
			if _, err := c.db.ExecContext(ctx, schema.uniqueIndexSQL(col)); err != nil {
				return schemaConflict(schema.Name, "create unique index on "+col.Name+" of", err)
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	report.AlreadyCurrent = !report.TableCreated && len(report.ColumnsAdded) == 0
	if report.TableCreated {
		logging.Log.Infof("Created table %s", schema.Name)
	}
	return report, nil
}

// EvolveAll evolves each schema in order and stops at the first error.
func (r *Repository) EvolveAll(ctx context.Context, schemas ...TableSchema) ([]EvolutionReport, error) {
	reports := make([]EvolutionReport, 0, len(schemas))
	for _, s := range schemas {
		report, err := r.Evolve(ctx, s)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// SchemaDiff compares a desired schema with the live table without changing it.
type SchemaDiff struct {
	Table        string
	Exists       bool
	Present      []string
	Missing      []string
	Extra        []string
	MissingIndex []string
}

// Current reports whether Evolve would change nothing.
func (d SchemaDiff) Current() bool {
	return d.Exists && len(d.Missing) == 0 && len(d.MissingIndex) == 0
}

// Diff inspects the live table and reports how it differs from schema.
func (r *Repository) Diff(ctx context.Context, schema TableSchema) (SchemaDiff, error) {
	diff := SchemaDiff{Table: schema.Name}
	if err := schema.Validate(); err != nil {
		return diff, err
	}

	live, err := r.LiveColumns(ctx, schema.Name)
	if err != nil {
		return diff, err
	}
	diff.Exists = live.Exists()

	for _, col := range schema.Columns {
		if live.Has(col.Name) {
			diff.Present = append(diff.Present, col.Name)
		} else {
			diff.Missing = append(diff.Missing, col.Name)
		}
		if col.Unique {
			ok, err := r.IndexExists(ctx, UniqueIndexName(schema.Name, col.Name))
			if err != nil {
				return diff, err
			}
			if !ok {
				diff.MissingIndex = append(diff.MissingIndex, UniqueIndexName(schema.Name, col.Name))
			}
		}
	}
	for _, lc := range live.Columns {
		if _, ok := schema.Column(lc.Name); !ok {
			diff.Extra = append(diff.Extra, lc.Name)
		}
	}
	return diff, nil
}
