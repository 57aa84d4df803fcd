package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "billing.db"), MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLoadMigrations_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":  {Data: []byte("SELECT 1;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"README.md":      {Data: []byte("ignored")},
	}

	migrations, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 2, migrations[0].Version)
	assert.Equal(t, "second", migrations[0].Name)
	assert.Equal(t, 10, migrations[1].Version)
	assert.Len(t, migrations[0].Checksum, 64)
}

func TestLoadMigrations_RejectsBadNames(t *testing.T) {
	tests := map[string]fstest.MapFS{
		"no version":        {"init.sql": {Data: []byte("SELECT 1;")}},
		"no name":           {"001.sql": {Data: []byte("SELECT 1;")}},
		"duplicate version": {"001_a.sql": {Data: []byte("SELECT 1;")}, "1_b.sql": {Data: []byte("SELECT 2;")}},
	}
	for name, fsys := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadMigrations(fsys)
			assert.Error(t, err)
		})
	}
}

func TestMigrator_UpIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	migrator := NewMigrator(db, zap.NewNop())

	applied, err := migrator.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	applied, err = migrator.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)

	_, err = db.Exec(`INSERT INTO students (id, student_code, full_name, created_at, updated_at)
		VALUES ('a', 'S-1', 'A', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO students (id, student_code, full_name, created_at, updated_at)
		VALUES ('b', 'S-1', 'B', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	assert.Error(t, err, "student_code must be unique")
}

func TestMigrator_DetectsModifiedMigration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	original := fstest.MapFS{"001_things.sql": {Data: []byte("CREATE TABLE things (id TEXT);")}}
	_, err := NewMigrator(db, zap.NewNop()).WithSource(original).Up(ctx)
	require.NoError(t, err)

	edited := fstest.MapFS{"001_things.sql": {Data: []byte("CREATE TABLE things (id TEXT, name TEXT);")}}
	_, err = NewMigrator(db, zap.NewNop()).WithSource(edited).Up(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modified")
}

func TestMigrator_FailedMigrationIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	broken := fstest.MapFS{
		"001_ok.sql":     {Data: []byte("CREATE TABLE ok (id TEXT);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE (;")},
	}
	applied, err := NewMigrator(db, zap.NewNop()).WithSource(broken).Up(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, applied)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestDSN(t *testing.T) {
	dsn := DSN(Config{Path: "data/billing.db"})
	assert.Contains(t, dsn, "file:data/billing.db?")
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_txlock=immediate")
}
