package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	checksum TEXT NOT NULL,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// Migration is one versioned schema script, named NNN_name.sql
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// Migrator applies schema scripts in version order and records them in
// schema_migrations. A script that changed after it was applied is an error.
type Migrator struct {
	db     *DB
	source fs.FS
	logger *zap.Logger
}

// NewMigrator creates a migrator over the embedded billing schema
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		// the embed pattern guarantees the directory exists
		panic(err)
	}
	return &Migrator{db: db, source: sub, logger: logger}
}

// WithSource replaces the script source, mainly for tests
func (m *Migrator) WithSource(fsys fs.FS) *Migrator {
	m.source = fsys
	return m
}

// Up applies every pending script and returns how many ran
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if _, err := m.db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := loadMigrations(m.source)
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := m.appliedChecksums(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read applied migrations: %w", err)
	}

	count := 0
	for _, migration := range migrations {
		if checksum, ok := applied[migration.Version]; ok {
			if checksum != migration.Checksum {
				return count, fmt.Errorf("migration %03d_%s was modified after it was applied", migration.Version, migration.Name)
			}
			continue
		}

		m.logger.Info("Applying migration",
			zap.Int("version", migration.Version),
			zap.String("name", migration.Name))

		if err := m.apply(migration); err != nil {
			return count, fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
		count++
	}

	m.logger.Info("Database schema up to date",
		zap.Int("applied", count),
		zap.Int("total", len(migrations)))
	return count, nil
}

func (m *Migrator) appliedChecksums(ctx context.Context) (map[int]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var (
			version  int
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}

func (m *Migrator) apply(migration Migration) error {
	return m.db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(migration.SQL); err != nil {
			return err
		}
		_, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)",
			migration.Version, migration.Name, migration.Checksum,
		)
		return err
	})
}

// loadMigrations reads the .sql files at the root of fsys ordered by version.
// Duplicate versions are rejected.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		version, name, err := parseMigrationName(entry.Name())
		if err != nil {
			return nil, err
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", other, entry.Name(), version)
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(content)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			SQL:      string(content),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func parseMigrationName(filename string) (int, string, error) {
	prefix, rest, ok := strings.Cut(strings.TrimSuffix(filename, ".sql"), "_")
	version, err := strconv.Atoi(prefix)
	if !ok || err != nil || version <= 0 {
		return 0, "", fmt.Errorf("invalid migration filename %q, want NNN_name.sql", filename)
	}
	return version, rest, nil
}
