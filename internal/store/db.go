// Package store is the Storage Engine (§4.B): two embedded SQLite databases
// opened with strict PRAGMAs, numbered Go-function migrations applied under
// BEGIN IMMEDIATE, and the FTS5 + optional vector tables that back retrieval.
//
// Grounded on the teacher's store/sqlite.go NewSQLiteStore/initSchema shape
// (sql.Open("sqlite", path), directory creation, schema-in-one-call), but the
// teacher's ignore-errors `ALTER TABLE ADD COLUMN` idiom is replaced with a
// numbered migration table per this spec's stricter §4.B mandate: a failed
// migration must roll back and fail the open, which silently-ignored ALTER
// TABLE errors cannot express.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/logging"
)

// migration is one numbered, idempotent schema step. Version must be
// consecutive starting at 1; migrations run in order inside one
// BEGIN IMMEDIATE transaction per migration.
type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, conn *sql.Conn) error
}

// openPragma sets the PRAGMAs §4.B requires at open: WAL journaling,
// synchronous=NORMAL, foreign keys on, and a busy timeout so concurrent
// writers block instead of failing immediately.
func openPragma(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return &errs.StorageError{Kind: errs.StorageIO, Op: "pragma", Err: fmt.Errorf("%s: %w", stmt, err)}
		}
	}
	return nil
}

// openDB opens a sqlite database at path (creating its parent directory if
// needed), applies the required PRAGMAs, and runs migrations. path may be
// ":memory:" for tests.
func openDB(ctx context.Context, path string, migrations []migration) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "mkdir", Err: err}
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "open", Err: err}
	}
	// A single writer handle per database (§5): SQLite serializes writes
	// anyway, but capping the pool avoids SQLITE_BUSY storms under WAL.
	db.SetMaxOpenConns(1)

	if err := openPragma(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(ctx, db, migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchemaVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL,
			name TEXT NOT NULL,
			applied_at_ms INTEGER NOT NULL
		)
	`)
	if err != nil {
		return &errs.StorageError{Kind: errs.StorageMigrate, Op: "ensure_schema_version", Err: err}
	}
	return nil
}

func currentSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v)
	if err != nil {
		return 0, &errs.StorageError{Kind: errs.StorageMigrate, Op: "read_schema_version", Err: err}
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

// migrate applies every migration whose version exceeds the current schema
// version, each inside its own BEGIN IMMEDIATE/COMMIT. A failure rolls back
// that migration and fails the open (§4.B: "migrations that partially apply
// must be rolled back and the open must fail").
func migrate(ctx context.Context, db *sql.DB, migrations []migration) error {
	if err := ensureSchemaVersionTable(ctx, db); err != nil {
		return err
	}
	current, err := currentSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
		logging.Log.Infof("store: applied migration %d (%s)", m.version, m.name)
	}
	return nil
}

// applyMigration runs one migration inside a raw BEGIN IMMEDIATE/COMMIT pair.
// database/sql's *sql.Tx always issues a plain BEGIN, which only acquires
// SQLite's write lock lazily at first write; §4.B requires the lock up
// front, so migrations bypass sql.Tx via WithImmediateTx.
func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	err := WithImmediateTx(ctx, db, func(ctx context.Context, conn *sql.Conn) error {
		if err := m.apply(ctx, conn); err != nil {
			return err
		}
		_, err := conn.ExecContext(ctx,
			`INSERT INTO schema_version (version, name, applied_at_ms) VALUES (?, ?, ?)`,
			m.version, m.name, int64(idtime.Now()))
		return err
	})
	if err != nil {
		return &errs.StorageError{Kind: errs.StorageMigrate, Op: fmt.Sprintf("migrate[%d:%s]", m.version, m.name), Err: err}
	}
	return nil
}
