package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/logging"
)

// Store owns the two SQLite handles §6 mandates: memory.db (people, facts,
// episodes, lessons, capsules, dirty queues, observation counters, FTS and
// optional vector tables) and proactive.db (events, send log, open loops).
// Grounded on the teacher's single-handle SQLiteStore (store/sqlite.go), but
// split in two per this spec's §6 persisted-layout requirement.
type Store struct {
	Memory    *sql.DB
	Proactive *sql.DB

	// VectorEnabled reports whether vector tables were successfully
	// provisioned for the current embedding dimension. False means the
	// engine is running in the "downgraded to lexical-only" observable mode
	// §4.B's failure semantics describe.
	VectorEnabled bool
}

// Open opens both databases under dataDir, applies PRAGMAs and migrations,
// and — if embedDims > 0 — provisions the vector tables for that
// dimension. embedDims should be 0 when no Embedder is configured.
func Open(ctx context.Context, dataDir string, embedDims int) (*Store, error) {
	memPath := filepath.Join(dataDir, "memory.db")
	proPath := filepath.Join(dataDir, "proactive.db")

	memDB, err := openDB(ctx, memPath, memoryMigrations())
	if err != nil {
		return nil, fmt.Errorf("open memory.db: %w", err)
	}

	proDB, err := openDB(ctx, proPath, proactiveMigrations())
	if err != nil {
		memDB.Close()
		return nil, fmt.Errorf("open proactive.db: %w", err)
	}

	s := &Store{Memory: memDB, Proactive: proDB}

	if embedDims > 0 {
		if err := ensureVectorTables(ctx, memDB, embedDims); err != nil {
			logging.Log.Warnf("store: vector table provisioning failed, downgrading to lexical-only: %v", err)
			s.VectorEnabled = false
		} else {
			s.VectorEnabled = true
		}
	}

	return s, nil
}

// OpenMemory opens just memory.db, for components (retrieval, memory store,
// consolidation) that never touch the scheduler's database. Primarily used
// by tests with an in-memory database.
func OpenMemory(ctx context.Context, path string, embedDims int) (*sql.DB, bool, error) {
	db, err := openDB(ctx, path, memoryMigrations())
	if err != nil {
		return nil, false, err
	}
	vectorEnabled := false
	if embedDims > 0 {
		if err := ensureVectorTables(ctx, db, embedDims); err != nil {
			logging.Log.Warnf("store: vector table provisioning failed, downgrading to lexical-only: %v", err)
		} else {
			vectorEnabled = true
		}
	}
	return db, vectorEnabled, nil
}

// OpenProactive opens just proactive.db, for scheduler-only tests.
func OpenProactive(ctx context.Context, path string) (*sql.DB, error) {
	return openDB(ctx, path, proactiveMigrations())
}

func (s *Store) Close() error {
	var firstErr error
	if err := s.Memory.Close(); err != nil {
		firstErr = &errs.StorageError{Kind: errs.StorageIO, Op: "close_memory", Err: err}
	}
	if err := s.Proactive.Close(); err != nil && firstErr == nil {
		firstErr = &errs.StorageError{Kind: errs.StorageIO, Op: "close_proactive", Err: err}
	}
	return firstErr
}
