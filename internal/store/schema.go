package store

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 1

func initSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	// The cache is disposable, so migration is rebuild-from-zero rather
	// than stepwise upgrades.
	if _, err := tx.Exec(`
        DROP TABLE IF EXISTS handles;
        DROP TABLE IF EXISTS files;

        CREATE TABLE files (
            path     TEXT PRIMARY KEY,
            mtime    INTEGER NOT NULL,
            checksum BLOB NOT NULL
        );

        CREATE TABLE handles (
            path      TEXT NOT NULL,
            name      TEXT NOT NULL,
            kind      INTEGER NOT NULL,
            line      INTEGER NOT NULL,
            start_col INTEGER NOT NULL,
            end_col   INTEGER NOT NULL,
            FOREIGN KEY (path) REFERENCES files(path) ON DELETE CASCADE ON UPDATE CASCADE
        );

        CREATE INDEX idx_handles_path ON handles(path);
        CREATE INDEX idx_handles_name ON handles(name);
    `); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}
