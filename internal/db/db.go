package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file created under the base directory.
const FileName = "screenflow.db"

// migrations are applied in order; migrations[i] moves user_version from i
// to i+1. Append only.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS kv (
	   key        TEXT PRIMARY KEY,
	   value      BLOB NOT NULL,
	   updated_at INTEGER NOT NULL
	 )`,
	`CREATE INDEX IF NOT EXISTS kv_updated_at ON kv (updated_at)`,
}

// CurrentSchemaVersion is the user_version after every migration has run.
var CurrentSchemaVersion = len(migrations)

// Init opens (creating if needed) baseDir/screenflow.db in WAL mode and
// brings its schema up to date. Tests pass t.TempDir() as baseDir.
func Init(baseDir string) (*sql.DB, error) {
	if err := EnsureDirs(baseDir); err != nil {
		return nil, err
	}

	path := filepath.Join(baseDir, FileName)
	// DSN pragmas apply to every pooled connection.
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var mode string
	if err := conn.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if mode != "wal" {
		conn.Close()
		return nil, fmt.Errorf("expected WAL mode, got %s", mode)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	_ = os.Chmod(path, 0600)
	return conn, nil
}

// EnsureDirs creates baseDir, baseDir/exports and baseDir/data with
// owner-only permissions. Every storage backend calls it.
func EnsureDirs(baseDir string) error {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "exports"), filepath.Join(baseDir, "data")} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		_ = os.Chmod(dir, 0700)
	}
	return nil
}

// migrate runs each pending migration in its own transaction together with
// the user_version bump.
func migrate(conn *sql.DB) error {
	version, err := GetUserVersion(conn)
	if err != nil {
		return err
	}
	for v := version; v < len(migrations); v++ {
		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: failed to set user_version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
	}
	return nil
}

// GetUserVersion returns the schema version stored in the user_version pragma.
func GetUserVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}
