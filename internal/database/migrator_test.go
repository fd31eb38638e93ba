package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/keyword-hunter/migrations"
)

func TestNewMigrator_Validation(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("fails with nil database", func(t *testing.T) {
		migrator, err := NewMigrator(nil, "", logger)
		assert.Nil(t, migrator)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database is required")
	})

	t.Run("fails with nil pool", func(t *testing.T) {
		migrator, err := NewMigrator(&DB{}, "", logger)
		assert.Nil(t, migrator)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database is required")
	})
}

func TestOpenSource(t *testing.T) {
	t.Run("embedded migrations start at version 1", func(t *testing.T) {
		src, err := openSource("")
		require.NoError(t, err)
		defer src.Close()

		first, err := src.First()
		require.NoError(t, err)
		assert.Equal(t, uint(1), first)

		r, identifier, err := src.ReadUp(first)
		require.NoError(t, err)
		defer r.Close()
		assert.Equal(t, "create_keyword_runs", identifier)
	})

	t.Run("directory path", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "000007_extra.up.sql"), []byte("SELECT 1;"), 0o600))

		src, err := openSource(dir)
		require.NoError(t, err)
		defer src.Close()

		first, err := src.First()
		require.NoError(t, err)
		assert.Equal(t, uint(7), first)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := openSource(filepath.Join(t.TempDir(), "absent"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migrations path validation failed")
	})
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fsGlob("*.up.sql")
	require.NoError(t, err)
	downs, err := fsGlob("*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func fsGlob(pattern string) ([]string, error) {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if ok, _ := filepath.Match(pattern, e.Name()); ok {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
