// filepath: internal/repository/schema.go
package repository

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"lostfound/internal/models"
	"lostfound/internal/shared"
)

// SafeNameRegex validates table and column names before they are quoted into DDL.
var SafeNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ColumnType is one of the storage types a TableSchema may declare.
type ColumnType string

const (
	TypeText    ColumnType = "TEXT"
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeBoolean ColumnType = "BOOLEAN"
	TypeBlob    ColumnType = "BLOB"
)

func (t ColumnType) valid() bool {
	switch t {
	case TypeText, TypeInteger, TypeReal, TypeBoolean, TypeBlob:
		return true
	}
	return false
}

// Column declares one desired column.
//
// Default must be nil or a constant of type string, int, int64, float64 or
// bool. Unique columns get a unique index named ux_<table>_<column> rather
// than an inline constraint, so the same guarantee holds for columns added
// to an existing table.
type Column struct {
	Name          string
	Type          ColumnType
	Default       any
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
}

// TableSchema is the desired state of one table. It carries no version:
// evolution compares it against the live table every time.
type TableSchema struct {
	Name    string
	Columns []Column
}

// Validate checks that the schema can be created and, column by column,
// added to an existing table.
func (s TableSchema) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: table %q: %s", shared.ErrSchemaConflict, s.Name, fmt.Sprintf(format, args...))
	}

	if !SafeNameRegex.MatchString(s.Name) {
		return fail("invalid table name")
	}
	if len(s.Columns) == 0 {
		return fail("no columns")
	}

	seen := make(map[string]bool, len(s.Columns))
	primaryKeys := 0
	for _, c := range s.Columns {
		if !SafeNameRegex.MatchString(c.Name) {
			return fail("invalid column name %q", c.Name)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return fail("duplicate column %q", c.Name)
		}
		seen[key] = true

		if !c.Type.valid() {
			return fail("column %q: unsupported type %q", c.Name, c.Type)
		}
		if c.PrimaryKey {
			primaryKeys++
		}
		if c.AutoIncrement && !(c.PrimaryKey && c.Type == TypeInteger) {
			return fail("column %q: AUTOINCREMENT needs an INTEGER primary key", c.Name)
		}
		if _, err := literal(c.Default); err != nil {
			return fail("column %q: %v", c.Name, err)
		}
		if !c.Nullable && !c.PrimaryKey && c.Default == nil {
			return fail("column %q: NOT NULL column needs a default to be added to existing rows", c.Name)
		}
	}
	if primaryKeys != 1 {
		return fail("want exactly one primary key column, have %d", primaryKeys)
	}
	return nil
}

// Column returns the declared column with the given name, compared case-insensitively.
func (s TableSchema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// literal renders a constant default as SQL. Only constants are accepted:
// SQLite refuses expression defaults in ALTER TABLE ADD COLUMN.
func literal(v any) (string, error) {
	switch d := v.(type) {
	case nil:
		return "", nil
	case string:
		return "'" + strings.ReplaceAll(d, "'", "''") + "'", nil
	case int:
		return strconv.Itoa(d), nil
	case int64:
		return strconv.FormatInt(d, 10), nil
	case float64:
		return strconv.FormatFloat(d, 'g', -1, 64), nil
	case bool:
		if d {
			return "1", nil
		}
		return "0", nil
	default:
		return "", fmt.Errorf("default %v (%T) is not a constant", v, v)
	}
}

func quote(name string) string {
	return `"` + name + `"`
}

// definition renders a column for CREATE TABLE and ALTER TABLE ADD COLUMN.
func (c Column) definition() string {
	var sb strings.Builder
	sb.WriteString(quote(c.Name))
	sb.WriteString(" ")
	sb.WriteString(string(c.Type))
	if c.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
		if c.AutoIncrement {
			sb.WriteString(" AUTOINCREMENT")
		}
	}
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if lit, _ := literal(c.Default); lit != "" {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(lit)
	}
	return sb.String()
}

func (s TableSchema) createSQL() string {
	defs := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		defs = append(defs, c.definition())
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(s.Name), strings.Join(defs, ", "))
}

func (s TableSchema) addColumnSQL(c Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quote(s.Name), c.definition())
}

// UniqueIndexName is the name of the index enforcing a Unique column.
func UniqueIndexName(table, column string) string {
	return fmt.Sprintf("ux_%s_%s", table, column)
}

func (s TableSchema) uniqueIndexSQL(c Column) string {
	return fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
		quote(UniqueIndexName(s.Name, c.Name)), quote(s.Name), quote(c.Name))
}

// Table names owned by this package.
const (
	UsersTableName    = "users"
	SettingsTableName = "settings"
)

// UsersTable is the desired users table.
func UsersTable() TableSchema {
	return TableSchema{
		Name: UsersTableName,
		Columns: []Column{
			{Name: "id", Type: TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Name: "username", Type: TypeText, Default: "", Unique: true},
			{Name: "password_hash", Type: TypeText, Default: ""},
			{Name: "display_name", Type: TypeText, Default: ""},
			{Name: "role", Type: TypeText, Default: models.RoleUser},
			{Name: "store_name", Type: TypeText, Nullable: true},
			{Name: "must_change_password", Type: TypeInteger, Default: 0},
			{Name: "created_at", Type: TypeText, Nullable: true},
			{Name: "last_login", Type: TypeText, Nullable: true},
		},
	}
}

// SettingsTable is the desired settings table.
func SettingsTable() TableSchema {
	return TableSchema{
		Name: SettingsTableName,
		Columns: []Column{
			{Name: "key", Type: TypeText, PrimaryKey: true},
			{Name: "value", Type: TypeText, Default: ""},
			{Name: "updated_at", Type: TypeText, Nullable: true},
		},
	}
}

// OwnedTables lists the tables this package evolves on every open, in order.
func OwnedTables() []TableSchema {
	return []TableSchema{UsersTable(), SettingsTable()}
}
