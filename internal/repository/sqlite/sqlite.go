// Package sqlite stores the organizer's state in a SQLite database file.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the binary still cross-compiles
// without a C toolchain.
//
// SNAPSHOT SEMANTICS:
// The store hands us whole snapshots, not row-level changes. Save therefore
// builds a complete new database next to the target and renames it over the
// live file once the transaction has committed. Readers of the old file, and
// a crash halfway through, only ever see a finished database.
//
// Because the file is replaced by rename, the database runs in rollback
// journal mode (journal_mode=DELETE). WAL would leave -wal and -shm side
// files that belong to the old inode.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/xid"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/repository"
)

var _ repository.StateRepository = (*DB)(nil)

// DB is a StateRepository backed by a SQLite file. It holds no open
// connection between calls; every Load and Save opens its own.
type DB struct {
	path string
}

func New(path string) *DB {
	return &DB{path: path}
}

func (db *DB) Path() string { return db.path }

// open creates a connection pool for path and applies the pragmas every
// connection needs.
//
// sql.Open does not touch the file; Ping forces the first real connection so
// a bad path surfaces here instead of on the first query.
func open(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: pragmas are per connection, and a second pooled
	// connection would not have seen them.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=DELETE",
		"PRAGMA synchronous=FULL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return conn, nil
}

// migrate creates the schema. Save always starts from an empty file, so
// CREATE TABLE IF NOT EXISTS is only there to make migrate safe to rerun.
func migrate(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS categories (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			color      TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tags (
			id         TEXT PRIMARY KEY,
			label      TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS snippets (
			id          TEXT PRIMARY KEY,
			position    INTEGER NOT NULL,
			label       TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,
			is_template INTEGER NOT NULL DEFAULT 0,
			is_markdown INTEGER NOT NULL DEFAULT 0,
			hidden      INTEGER NOT NULL DEFAULT 0,
			category_id TEXT REFERENCES categories(id)
		);
		CREATE INDEX IF NOT EXISTS idx_snippets_position ON snippets(position);

		CREATE TABLE IF NOT EXISTS snippet_tags (
			snippet_id TEXT NOT NULL REFERENCES snippets(id),
			tag_id     TEXT NOT NULL REFERENCES tags(id),
			PRIMARY KEY (snippet_id, tag_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// tempPath returns a unique sibling of path. Keeping it in the same
// directory is what makes the final rename atomic.
func tempPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+xid.New().String()+".tmp")
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, apperror.IOFailure("checking "+path, err)
	}
	return true, nil
}
