package repository

import (
	"context"
	"path/filepath"
	"testing"

	"lostfound/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveColumns(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t, filepath.Join(t.TempDir(), "inspect.db"), 0)

	t.Run("Absent table is empty, not an error", func(t *testing.T) {
		set, err := repo.LiveColumns(ctx, "nothing_here")
		require.NoError(t, err)
		assert.False(t, set.Exists())
		assert.Empty(t, set.Columns)

		ok, err := repo.TableExists(ctx, "nothing_here")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Reports declared attributes", func(t *testing.T) {
		_, err := repo.DB.ExecContext(ctx, `CREATE TABLE things (id INTEGER PRIMARY KEY, Label TEXT NOT NULL DEFAULT 'none', note TEXT)`)
		require.NoError(t, err)

		set, err := repo.LiveColumns(ctx, "things")
		require.NoError(t, err)
		require.True(t, set.Exists())
		assert.Equal(t, []string{"id", "Label", "note"}, set.Names())

		id, ok := set.Get("id")
		require.True(t, ok)
		assert.True(t, id.PrimaryKey)

		label, ok := set.Get("label")
		require.True(t, ok, "lookup ignores case")
		assert.True(t, label.NotNull)
		assert.Equal(t, "TEXT", label.Type)
		assert.Equal(t, "'none'", label.Default.String)

		note, _ := set.Get("NOTE")
		assert.False(t, note.NotNull)
		assert.False(t, note.Default.Valid)

		ok, err = repo.TableExists(ctx, "THINGS")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Unsafe names are rejected", func(t *testing.T) {
		_, err := repo.LiveColumns(ctx, "x'); DROP TABLE things; --")
		assert.ErrorIs(t, err, shared.ErrInvalidName)
	})
}
