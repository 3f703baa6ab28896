package database

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// MigrationsFS is set by the migrations package at init time to the
// embedded SQL files. Kept as a package variable so the database package
// does not import the migration files directly.
var MigrationsFS fs.FS

// MigrationsDir is the directory within MigrationsFS containing .sql files.
var MigrationsDir = "."

// Migrate applies all pending SQL migrations in filename order.
//
// Each .sql file is applied inside a transaction and recorded in the
// schema_migrations table; files already recorded are skipped, so
// Migrate is safe to run on every startup.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//
// Returns:
//   - error: nil when all migrations applied, otherwise the first failure
func (db *DB) Migrate(ctx context.Context) error {
	if MigrationsFS == nil {
		return fmt.Errorf("no migrations registered")
	}

	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	files, err := migrationFiles()
	if err != nil {
		return err
	}

	for _, file := range files {
		applied, err := db.migrationApplied(ctx, file)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := db.applyMigration(ctx, file); err != nil {
			return err
		}
	}

	return nil
}

// migrationFiles lists the embedded .sql files in lexical order.
func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// migrationApplied reports whether a migration file was already recorded.
func (db *DB) migrationApplied(ctx context.Context, filename string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE filename = ?",
		filename,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking migration %q: %w", filename, err)
	}
	return count > 0, nil
}

// applyMigration runs one migration file inside a transaction.
func (db *DB) applyMigration(ctx context.Context, filename string) error {
	content, err := fs.ReadFile(MigrationsFS, migrationPath(filename))
	if err != nil {
		return fmt.Errorf("reading migration %q: %w", filename, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration %q: %w", filename, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("applying migration %q: %w", filename, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (filename) VALUES (?)", filename,
	); err != nil {
		return fmt.Errorf("recording migration %q: %w", filename, err)
	}

	return tx.Commit()
}

// migrationPath joins the migrations directory and filename.
func migrationPath(filename string) string {
	if MigrationsDir == "." {
		return filename
	}
	return MigrationsDir + "/" + filename
}
