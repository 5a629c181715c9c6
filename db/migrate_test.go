package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := OpenWithMigrations(dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{
		"schema_migrations",
		"catalog_entries",
		"entry_attributes",
		"attribute_taxonomies",
		"taxonomy_object_types",
		"terms",
		"entry_terms",
		"scheduled_jobs",
		"pass_executions",
		"pass_leases",
		"run_events",
	} {
		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist after migrations", table)
	}
}

func TestMigrate(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil), "running migrations multiple times should be safe")

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
		assert.Equal(t, 5, count)

		var latest string
		require.NoError(t, db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&latest))
		assert.Equal(t, latest, SchemaVersion())
	})

	t.Run("fails on closed database", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		assert.Error(t, Migrate(db, nil))
	})

	t.Run("term uniqueness is case-sensitive", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		insert := "INSERT INTO terms (taxonomy, name, slug, created_at) VALUES ('pa_color', ?, 'red', '2026-01-01T00:00:00Z')"
		_, err = db.Exec(insert, "Red")
		require.NoError(t, err)
		_, err = db.Exec(insert, "red")
		require.NoError(t, err, "different case is a different term")
		_, err = db.Exec(insert, "Red")
		assert.Error(t, err, "exact duplicate must violate the unique index")
	})
}
