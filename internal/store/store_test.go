package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenMemory_CreatesSchema(t *testing.T) {
	ctx := context.Background()
	db, vecEnabled, err := OpenMemory(ctx, ":memory:", 0)
	require.NoError(t, err)
	defer db.Close()
	require.False(t, vecEnabled)

	for _, table := range []string{"people", "facts", "episodes", "lessons",
		"group_capsules", "dirty_group_capsules", "dirty_public_styles",
		"observation_counters", "facts_fts", "episodes_fts"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE name = ?`, table).Scan(&name)
		require.NoErrorf(t, err, "table %s should exist", table)
		require.Equal(t, table, name)
	}
}

func TestOpenMemory_WithEmbedDims_CreatesVectorTables(t *testing.T) {
	ctx := context.Background()
	db, vecEnabled, err := OpenMemory(ctx, ":memory:", 8)
	require.NoError(t, err)
	defer db.Close()
	require.True(t, vecEnabled)

	for _, table := range []string{"facts_vec", "episodes_vec"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE name = ?`, table).Scan(&name)
		require.NoErrorf(t, err, "table %s should exist", table)
	}
}

func TestOpenMemory_DimensionChange_DropsAndRecreatesVectorTables(t *testing.T) {
	ctx := context.Background()
	db, _, err := OpenMemory(ctx, ":memory:", 8)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `
		INSERT INTO facts (person_id, content, created_at_ms) VALUES ('p1', 'hi', 1)
	`)
	require.NoError(t, err)
	require.NoError(t, upsertVector(ctx, db, "facts_vec", "fact_id", 1, []float32{1, 2, 3, 4, 5, 6, 7, 8}))

	require.NoError(t, ensureVectorTables(ctx, db, 16))

	var count int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts_vec`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 0, count, "dimension change must drop existing vector rows, not coerce them")

	dims, ok, err := recordedDims(ctx, db, "facts_vec")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 16, dims)
}

func TestOpenProactive_CreatesSchema(t *testing.T) {
	ctx := context.Background()
	db, err := OpenProactive(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"proactive_events", "proactive_log", "open_loops"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE name = ?`, table).Scan(&name)
		require.NoErrorf(t, err, "table %s should exist", table)
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, _, err := OpenMemory(ctx, ":memory:", 0)
	require.NoError(t, err)
	defer db.Close()

	// Re-running migrate against an already-migrated schema must not error
	// or reapply completed steps.
	require.NoError(t, migrate(ctx, db, memoryMigrations()))

	var version int
	err = db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, len(memoryMigrations()), version)
}

func TestEncodeDecodeVector_RoundTrips(t *testing.T) {
	v := []float32{0.1, -0.2, 0.3, 0.4}
	blob, norm := EncodeVector(v)
	require.Greater(t, norm, 0.0)

	decoded := DecodeVector(blob)
	require.Len(t, decoded, len(v))
	for i := range v {
		require.InDelta(t, v[i], decoded[i], 1e-6)
	}
}

func TestCosineSimilarity_IdenticalVectorsScoreOne(t *testing.T) {
	a := []float32{1, 0, 0}
	_, normA := EncodeVector(a)
	score := cosineSimilarity(a, a, normA, normA)
	require.InDelta(t, 1.0, score, 1e-9)
}

func TestCosineSimilarity_ZeroNormIsZero(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	_, normA := EncodeVector(a)
	score := cosineSimilarity(a, b, normA, 0)
	require.Equal(t, 0.0, score)
}
