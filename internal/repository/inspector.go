// filepath: internal/repository/inspector.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lostfound/internal/shared"
)

// LiveColumn is one column as SQLite reports it.
type LiveColumn struct {
	Name       string
	Type       string
	NotNull    bool
	Default    sql.NullString
	PrimaryKey bool
}

// LiveColumnSet is the observed column set of a table at one moment.
// It is never cached; inspect again before relying on it.
type LiveColumnSet struct {
	Table   string
	Columns []LiveColumn
}

// Exists reports whether the table was found. SQLite tables always have at
// least one column.
func (s LiveColumnSet) Exists() bool {
	return len(s.Columns) > 0
}

// Has reports whether the table has a column with the given name, compared
// case-insensitively as SQLite compares identifiers.
func (s LiveColumnSet) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Get returns the live column with the given name.
func (s LiveColumnSet) Get(name string) (LiveColumn, bool) {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return LiveColumn{}, false
}

// Names returns the column names in table order.
func (s LiveColumnSet) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// LiveColumns reads the current columns of table. A missing table yields an
// empty set and no error.
func (r *Repository) LiveColumns(ctx context.Context, table string) (LiveColumnSet, error) {
	set := LiveColumnSet{Table: table}
	if !SafeNameRegex.MatchString(table) {
		return set, fmt.Errorf("%w: table %q", shared.ErrInvalidName, table)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return set, Classify(fmt.Errorf("inspect %s: %w", table, err))
	}
	defer rows.Close()

	for rows.Next() {
		var c LiveColumn
		var pk int
		if err := rows.Scan(&c.Name, &c.Type, &c.NotNull, &c.Default, &pk); err != nil {
			return set, Classify(fmt.Errorf("inspect %s: %w", table, err))
		}
		c.PrimaryKey = pk > 0
		set.Columns = append(set.Columns, c)
	}
	if err := rows.Err(); err != nil {
		return set, Classify(fmt.Errorf("inspect %s: %w", table, err))
	}
	return set, nil
}

// TableExists reports whether a table with the given name exists.
func (r *Repository) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE", table).Scan(&n)
	if err != nil {
		return false, Classify(fmt.Errorf("lookup table %s: %w", table, err))
	}
	return n > 0, nil
}

// IndexExists reports whether an index with the given name exists.
func (r *Repository) IndexExists(ctx context.Context, index string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type = 'index' AND name = ? COLLATE NOCASE", index).Scan(&n)
	if err != nil {
		return false, Classify(fmt.Errorf("lookup index %s: %w", index, err))
	}
	return n > 0, nil
}
