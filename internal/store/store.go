// Package store is the persistent scan cache. It remembers, per document,
// the mtime and checksum of the last walk together with the extracted handle
// entries, so that an unchanged file can seed the index at startup without
// being re-read. The in-memory index stays authoritative; deleting the cache
// file costs warm-up time, nothing else.
package store

import (
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("store: not found")

// EntryKind distinguishes the two row types in the handles table.
type EntryKind int

const (
	EntryDefinition EntryKind = iota
	EntryReference
)

// Entry is one extracted definition or reference, positions included.
type Entry struct {
	Name     string
	Kind     EntryKind
	Line     int
	StartCol int
	EndCol   int
}

// FileRecord is the freshness stamp for one cached document.
type FileRecord struct {
	Path     string
	MTime    int64
	Checksum []byte
}

// Checksum hashes document bytes for change detection.
func Checksum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

type DB struct {
	db *sql.DB
}

// Open opens or creates the cache at path and migrates the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scan cache: %w", err)
	}

	if _, err := db.Exec(`
        PRAGMA foreign_keys = ON;
        PRAGMA journal_mode = WAL;
        PRAGMA busy_timeout = 5000;
    `); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set PRAGMA: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db: db}, nil
}

func (s *DB) Close() error {
	return s.db.Close()
}

// File returns the freshness stamp for path, or ErrNotFound.
func (s *DB) File(path string) (*FileRecord, error) {
	var rec FileRecord
	err := s.db.QueryRow(
		"SELECT path, mtime, checksum FROM files WHERE path = ?",
		path,
	).Scan(&rec.Path, &rec.MTime, &rec.Checksum)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file: %w", err)
	}
	return &rec, nil
}

// Paths returns every cached document path.
func (s *DB) Paths() ([]string, error) {
	rows, err := s.db.Query("SELECT path FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paths: %w", err)
	}
	return paths, nil
}

// PutDocument replaces the cached stamp and entries for path in one
// transaction.
func (s *DB) PutDocument(path string, mtime int64, checksum []byte, entries []Entry) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
            INSERT INTO files (path, mtime, checksum)
            VALUES (?, ?, ?)
            ON CONFLICT(path) DO UPDATE SET
                mtime = excluded.mtime,
                checksum = excluded.checksum
        `, path, mtime, checksum); err != nil {
			return fmt.Errorf("failed to upsert file: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM handles WHERE path = ?", path); err != nil {
			return fmt.Errorf("failed to delete stale entries: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		stmt, err := tx.Prepare(`
            INSERT INTO handles (path, name, kind, line, start_col, end_col)
            VALUES (?, ?, ?, ?, ?, ?)
        `)
		if err != nil {
			return fmt.Errorf("failed to prepare entry insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.Exec(path, e.Name, e.Kind, e.Line, e.StartCol, e.EndCol); err != nil {
				return fmt.Errorf("failed to insert entry: %w", err)
			}
		}
		return nil
	})
}

// Entries returns the cached handle rows for path, definitions first.
func (s *DB) Entries(path string) ([]Entry, error) {
	rows, err := s.db.Query(`
        SELECT name, kind, line, start_col, end_col
        FROM handles
        WHERE path = ?
        ORDER BY kind, line, start_col
    `, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Kind, &e.Line, &e.StartCol, &e.EndCol); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return entries, nil
}

// Delete drops the cached document; handle rows cascade.
func (s *DB) Delete(path string) error {
	result, err := s.db.Exec("DELETE FROM files WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Rename moves the cached document to a new path, replacing any record
// already there. Handle rows follow via the update cascade.
func (s *DB) Rename(oldPath, newPath string) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM files WHERE path = ?", newPath); err != nil {
			return fmt.Errorf("failed to clear rename target: %w", err)
		}
		if _, err := tx.Exec("UPDATE files SET path = ? WHERE path = ?", newPath, oldPath); err != nil {
			return fmt.Errorf("failed to rename file: %w", err)
		}
		return nil
	})
}

func (s *DB) withTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
