package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/llmiface"
)

// Vector tables are optional and write-best-effort (§3 invariant 4, §4.B):
// their absence must never prevent a write, and retrieval degrades to
// lexical-only. Rows are plain tables (not an FTS5/vec0 extension — the
// teacher's dependency graph carries no vector-search library, and this
// spec only needs a top-k cosine scan, not ANN at scale), storing the
// embedding as a little-endian float32 BLOB plus an L2 norm for fast
// re-normalization checks.

const vectorMetaTable = "vector_meta"

func ensureVectorMetaTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			table_name TEXT PRIMARY KEY,
			dims INTEGER NOT NULL
		)
	`, vectorMetaTable))
	if err != nil {
		return &errs.StorageError{Kind: errs.StorageIO, Op: "ensure_vector_meta", Err: err}
	}
	return nil
}

// ensureVectorTables creates facts_vec/episodes_vec for the given embedding
// dimension, dropping and recreating them if a prior run recorded a
// different dimension. §4.B: "MUST detect an embedding-dimension change ...
// and drop/recreate the vec tables before accepting new writes (never
// silently coerce)".
func ensureVectorTables(ctx context.Context, db *sql.DB, dims int) error {
	if dims <= 0 {
		return nil // no embedder configured; engine runs lexical-only
	}
	if err := ensureVectorMetaTable(ctx, db); err != nil {
		return err
	}

	for _, t := range []struct{ table, idCol string }{
		{"facts_vec", "fact_id"},
		{"episodes_vec", "episode_id"},
	} {
		existingDims, ok, err := recordedDims(ctx, db, t.table)
		if err != nil {
			return err
		}
		if ok && existingDims != dims {
			if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", t.table)); err != nil {
				return &errs.StorageError{Kind: errs.StorageIO, Op: "drop_vec_table", Err: err}
			}
			ok = false
		}
		if !ok {
			if _, err := db.ExecContext(ctx, fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					%s INTEGER PRIMARY KEY,
					embedding BLOB NOT NULL,
					norm REAL NOT NULL
				)
			`, t.table, t.idCol)); err != nil {
				return &errs.StorageError{Kind: errs.StorageIO, Op: "create_vec_table", Err: err}
			}
			if _, err := db.ExecContext(ctx, fmt.Sprintf(`
				INSERT INTO %s (table_name, dims) VALUES (?, ?)
				ON CONFLICT(table_name) DO UPDATE SET dims = excluded.dims
			`, vectorMetaTable), t.table, dims); err != nil {
				return &errs.StorageError{Kind: errs.StorageIO, Op: "record_vec_dims", Err: err}
			}
		}
	}
	return nil
}

func recordedDims(ctx context.Context, db *sql.DB, table string) (int, bool, error) {
	var dims int
	err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT dims FROM %s WHERE table_name = ?", vectorMetaTable), table).Scan(&dims)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &errs.StorageError{Kind: errs.StorageIO, Op: "read_vec_dims", Err: err}
	}
	return dims, true, nil
}

// EncodeVector serializes an embedding, as given, into a little-endian
// float32 BLOB plus its L2 norm (so cosine scans can divide by it and skip
// degenerate zero vectors). Exported so the retrieval
// package's vector scan can decode rows without duplicating the wire
// format.
func EncodeVector(v llmiface.Vector) (blob []byte, norm float64) {
	buf := make([]byte, 4*len(v))
	var sumSq float64
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
		sumSq += float64(f) * float64(f)
	}
	return buf, math.Sqrt(sumSq)
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(blob []byte) llmiface.Vector {
	v := make(llmiface.Vector, len(blob)/4)
	for i := range v {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		v[i] = math.Float32frombits(bits)
	}
	return v
}

// cosineSimilarity assumes both inputs are non-empty and equal length;
// callers must guard dimension mismatches before calling this.
func cosineSimilarity(a, b llmiface.Vector, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

// upsertVector writes a best-effort embedding row for a fact or episode.
// Callers must treat any error here as non-fatal to the surrounding write
// (§4.B: "the vector write is outside that transaction and may fail
// without aborting the caller").
func upsertVector(ctx context.Context, db *sql.DB, table, idCol string, id int64, v llmiface.Vector) error {
	blob, norm := EncodeVector(v)
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s, embedding, norm) VALUES (?, ?, ?)
		ON CONFLICT(%s) DO UPDATE SET embedding = excluded.embedding, norm = excluded.norm
	`, table, idCol, idCol), id, blob, norm)
	return err
}

// UpsertFactVector writes a best-effort embedding for a fact. Per §4.B the
// caller must treat failure as non-fatal — the fact row is already
// committed by the time this runs.
func UpsertFactVector(ctx context.Context, db *sql.DB, factID int64, v llmiface.Vector) error {
	return upsertVector(ctx, db, "facts_vec", "fact_id", factID, v)
}

// UpsertEpisodeVector writes a best-effort embedding for an episode.
func UpsertEpisodeVector(ctx context.Context, db *sql.DB, episodeID int64, v llmiface.Vector) error {
	return upsertVector(ctx, db, "episodes_vec", "episode_id", episodeID, v)
}
