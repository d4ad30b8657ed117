package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lostfound/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itemsTable() TableSchema {
	return TableSchema{
		Name: "items",
		Columns: []Column{
			{Name: "id", Type: TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Name: "title", Type: TypeText, Default: ""},
			{Name: "found_at", Type: TypeText, Nullable: true},
			{Name: "weight", Type: TypeReal, Default: 0.0},
			{Name: "claimed", Type: TypeBoolean, Default: false},
			{Name: "photo", Type: TypeBlob, Nullable: true},
			{Name: "tag", Type: TypeText, Nullable: true, Unique: true},
		},
	}
}

func TestTableSchemaValidate(t *testing.T) {
	base := func() TableSchema {
		return TableSchema{Name: "t", Columns: []Column{{Name: "id", Type: TypeInteger, PrimaryKey: true}}}
	}
	with := func(cols ...Column) TableSchema {
		s := base()
		s.Columns = append(s.Columns, cols...)
		return s
	}

	tests := []struct {
		name   string
		schema TableSchema
		valid  bool
	}{
		{"minimal", base(), true},
		{"owned users", UsersTable(), true},
		{"owned settings", SettingsTable(), true},
		{"all types", itemsTable(), true},
		{"bad table name", TableSchema{Name: "t; DROP TABLE users", Columns: base().Columns}, false},
		{"no columns", TableSchema{Name: "t"}, false},
		{"bad column name", with(Column{Name: "a b", Type: TypeText, Nullable: true}), false},
		{"duplicate column differing in case", with(Column{Name: "ID", Type: TypeText, Nullable: true}), false},
		{"unknown type", with(Column{Name: "a", Type: "VARCHAR", Nullable: true}), false},
		{"no primary key", TableSchema{Name: "t", Columns: []Column{{Name: "a", Type: TypeText, Nullable: true}}}, false},
		{"two primary keys", with(Column{Name: "b", Type: TypeText, PrimaryKey: true}), false},
		{"autoincrement on text", TableSchema{Name: "t", Columns: []Column{{Name: "id", Type: TypeText, PrimaryKey: true, AutoIncrement: true}}}, false},
		{"expression default", with(Column{Name: "a", Type: TypeText, Default: []string{"CURRENT_TIMESTAMP"}}), false},
		{"not null without default", with(Column{Name: "a", Type: TypeText}), false},
		{"not null with default", with(Column{Name: "a", Type: TypeText, Default: "x"}), true},
		{"nullable without default", with(Column{Name: "a", Type: TypeText, Nullable: true}), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.schema.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, shared.ErrSchemaConflict)
			}
		})
	}
}

func TestColumnDefinition(t *testing.T) {
	assert.Equal(t, `"id" INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL`, UsersTable().Columns[0].definition())
	assert.Equal(t, `"role" TEXT NOT NULL DEFAULT 'user'`, Column{Name: "role", Type: TypeText, Default: "user"}.definition())
	assert.Equal(t, `"note" TEXT NOT NULL DEFAULT 'it''s'`, Column{Name: "note", Type: TypeText, Default: "it's"}.definition())
	assert.Equal(t, `"n" INTEGER NOT NULL DEFAULT 0`, Column{Name: "n", Type: TypeInteger, Default: 0}.definition())
	assert.Equal(t, `"ok" BOOLEAN NOT NULL DEFAULT 1`, Column{Name: "ok", Type: TypeBoolean, Default: true}.definition())
	assert.Equal(t, `"w" REAL NOT NULL DEFAULT 1.5`, Column{Name: "w", Type: TypeReal, Default: 1.5}.definition())
	assert.Equal(t, `"last_login" TEXT`, Column{Name: "last_login", Type: TypeText, Nullable: true}.definition())
}

func TestEvolveFreshStore(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t, filepath.Join(t.TempDir(), "fresh.db"), 0)

	report, err := repo.Evolve(ctx, UsersTable())
	require.NoError(t, err)
	assert.True(t, report.TableCreated)
	assert.Empty(t, report.ColumnsAdded)
	assert.False(t, report.AlreadyCurrent)

	live, err := repo.LiveColumns(ctx, UsersTableName)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "username", "password_hash", "display_name", "role",
		"store_name", "must_change_password", "created_at", "last_login"}, live.Names())

	ok, err := repo.IndexExists(ctx, "ux_users_username")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second run changes nothing
	report, err = repo.Evolve(ctx, UsersTable())
	require.NoError(t, err)
	assert.True(t, report.AlreadyCurrent)
	assert.False(t, report.TableCreated)
	assert.Empty(t, report.ColumnsAdded)
}

func TestEvolveLegacyTable(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t, filepath.Join(t.TempDir(), "legacy.db"), 0)

	// An early version: no display name, role, store or timestamps, and a
	// column this version no longer declares.
	_, err := repo.DB.ExecContext(ctx, `CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		UserName TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT 0
	)`)
	require.NoError(t, err)
	_, err = repo.DB.ExecContext(ctx, `INSERT INTO users (UserName, password_hash, is_admin) VALUES ('alice', 'h1', 1), ('bob', 'h2', 0)`)
	require.NoError(t, err)

	before, err := repo.LiveColumns(ctx, UsersTableName)
	require.NoError(t, err)

	report, err := repo.Evolve(ctx, UsersTable())
	require.NoError(t, err)
	assert.False(t, report.TableCreated)
	assert.False(t, report.AlreadyCurrent)
	assert.Equal(t, []string{"display_name", "role", "store_name", "must_change_password", "created_at", "last_login"}, report.ColumnsAdded)

	after, err := repo.LiveColumns(ctx, UsersTableName)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(after.Columns), len(before.Columns), "column count never decreases")
	assert.True(t, after.Has("is_admin"), "undeclared columns are kept")
	assert.True(t, after.Has("username"), "matched case-insensitively")

	// Existing rows survive and pick up the defaults.
	users, err := repo.GetUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "h1", users[0].PasswordHash)
	assert.Equal(t, "user", users[0].Role)
	assert.Equal(t, "", users[0].DisplayName)
	assert.False(t, users[0].MustChangePassword)
	assert.True(t, users[0].CreatedAt.IsZero())

	report, err = repo.Evolve(ctx, UsersTable())
	require.NoError(t, err)
	assert.True(t, report.AlreadyCurrent)
}

func TestEvolveConflicts(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing primary key column", func(t *testing.T) {
		repo := openTestRepo(t, filepath.Join(t.TempDir(), "nopk.db"), 0)
		_, err := repo.DB.ExecContext(ctx, `CREATE TABLE settings (name TEXT, value TEXT)`)
		require.NoError(t, err)

		_, err = repo.Evolve(ctx, SettingsTable())
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrSchemaConflict)

		// Nothing after the conflict was attempted.
		live, err := repo.LiveColumns(ctx, SettingsTableName)
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "value"}, live.Names())
	})

	t.Run("Duplicate legacy usernames block the unique index", func(t *testing.T) {
		repo := openTestRepo(t, filepath.Join(t.TempDir(), "dupes.db"), 0)
		_, err := repo.DB.ExecContext(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT)`)
		require.NoError(t, err)
		_, err = repo.DB.ExecContext(ctx, `INSERT INTO users (username) VALUES ('sam'), ('sam')`)
		require.NoError(t, err)

		_, err = repo.Evolve(ctx, UsersTable())
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrSchemaConflict)
		assert.NotErrorIs(t, err, shared.ErrStorageUnavailable)
	})

	t.Run("Invalid schema never touches the store", func(t *testing.T) {
		repo := openTestRepo(t, filepath.Join(t.TempDir(), "invalid.db"), 0)
		bad := TableSchema{Name: "bad", Columns: []Column{{Name: "a", Type: TypeText}}}

		_, err := repo.Evolve(ctx, bad)
		assert.ErrorIs(t, err, shared.ErrSchemaConflict)

		ok, err := repo.TableExists(ctx, "bad")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("EvolveAll stops at the first failure", func(t *testing.T) {
		repo := openTestRepo(t, filepath.Join(t.TempDir(), "stop.db"), 0)
		bad := TableSchema{Name: "bad", Columns: []Column{{Name: "a", Type: TypeText}}}

		reports, err := repo.EvolveAll(ctx, UsersTable(), bad, SettingsTable())
		assert.ErrorIs(t, err, shared.ErrSchemaConflict)
		assert.Len(t, reports, 1)

		ok, err := repo.TableExists(ctx, SettingsTableName)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestEvolveUniqueColumnAddedLater(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t, filepath.Join(t.TempDir(), "items.db"), 0)

	_, err := repo.DB.ExecContext(ctx, `CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT)`)
	require.NoError(t, err)
	_, err = repo.DB.ExecContext(ctx, `INSERT INTO items (title) VALUES ('umbrella'), ('scarf')`)
	require.NoError(t, err)

	report, err := repo.Evolve(ctx, itemsTable())
	require.NoError(t, err)
	assert.Contains(t, report.ColumnsAdded, "tag")

	// NULLs do not collide; real values do.
	_, err = repo.DB.ExecContext(ctx, `UPDATE items SET tag = 'A1' WHERE title = 'umbrella'`)
	require.NoError(t, err)
	_, err = repo.DB.ExecContext(ctx, `UPDATE items SET tag = 'A1' WHERE title = 'scarf'`)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
}

func TestEvolveDuplicateColumnIsAbsorbed(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t, filepath.Join(t.TempDir(), "dup.db"), 0)
	_, err := repo.Evolve(ctx, SettingsTable())
	require.NoError(t, err)

	// What a second process sees when it loses the race to add a column.
	_, err = repo.DB.ExecContext(ctx, `ALTER TABLE settings ADD COLUMN "value" TEXT`)
	require.Error(t, err)
	assert.True(t, isDuplicateColumn(err))
	assert.False(t, isUnavailable(err))
}

func TestEvolveConcurrentHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "race.db")

	first := openTestRepo(t, path, 5*time.Second)
	_, err := first.DB.ExecContext(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT)`)
	require.NoError(t, err)
	second := openTestRepo(t, path, 5*time.Second)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, repo := range []*Repository{first, second} {
		wg.Add(1)
		go func(i int, repo *Repository) {
			defer wg.Done()
			_, errs[i] = repo.EvolveAll(ctx, OwnedTables()...)
		}(i, repo)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	for _, table := range OwnedTables() {
		diff, err := first.Diff(ctx, table)
		require.NoError(t, err)
		assert.True(t, diff.Current(), "table %s", table.Name)
	}
}

func TestDiff(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t, filepath.Join(t.TempDir(), "diff.db"), 0)

	diff, err := repo.Diff(ctx, UsersTable())
	require.NoError(t, err)
	assert.False(t, diff.Exists)
	assert.False(t, diff.Current())
	assert.Len(t, diff.Missing, len(UsersTable().Columns))

	_, err = repo.DB.ExecContext(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT, legacy_flag INTEGER)`)
	require.NoError(t, err)

	diff, err = repo.Diff(ctx, UsersTable())
	require.NoError(t, err)
	assert.True(t, diff.Exists)
	assert.Equal(t, []string{"id", "username"}, diff.Present)
	assert.Equal(t, []string{"legacy_flag"}, diff.Extra)
	assert.Equal(t, []string{"ux_users_username"}, diff.MissingIndex)
	assert.Contains(t, diff.Missing, "role")

	// Diff is read-only.
	live, err := repo.LiveColumns(ctx, UsersTableName)
	require.NoError(t, err)
	assert.Len(t, live.Columns, 3)
}
