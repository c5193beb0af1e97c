package store

import (
	"context"
	"database/sql"
)

// WithImmediateTx runs fn inside a raw BEGIN IMMEDIATE/COMMIT on a dedicated
// connection, rolling back on error. Exported for components above this
// package (memory, scheduler) whose claim protocols need the write lock
// acquired up front rather than lazily at first write — the same need
// migrations have, factored out of db.go's applyMigration.
func WithImmediateTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, conn *sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return err
	}
	if err := fn(ctx, conn); err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return err
	}
	return nil
}
