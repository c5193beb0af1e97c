package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/store"
)

func openTestDB(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	memDB, vecEnabled, err := store.OpenMemory(ctx, ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { memDB.Close() })
	return &store.Store{Memory: memDB, VectorEnabled: vecEnabled}
}

func insertFact(t *testing.T, s *store.Store, content, evidence string, tier store.ConfidenceTier, createdAtMs idtime.Millis) int64 {
	t.Helper()
	res, err := s.Memory.ExecContext(context.Background(), `
		INSERT INTO facts (person_id, subject, content, category, fact_type, temporal_scope,
		                    evidence_quote, confidence_tier, is_current, created_at_ms)
		VALUES ('p1', '', ?, 'misc', 'factual', 'current', ?, ?, 1, ?)
	`, content, evidence, tier, int64(createdAtMs))
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestSearchFactsFTS_EmptyQueryReturnsEmpty(t *testing.T) {
	s := openTestDB(t)
	hits, err := SearchFactsFTS(context.Background(), s.Memory, DefaultConfig(), "", 10, idtime.Now())
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestSearchFactsFTS_ConfidenceTierMonotonicity(t *testing.T) {
	s := openTestDB(t)
	now := idtime.Now()
	insertFact(t, s, "works at Jane Street as a trader", "works at Jane Street", store.ConfidenceHigh, now)
	insertFact(t, s, "works at Jane Street maybe", "works at Jane Street maybe", store.ConfidenceLow, now)

	hits, err := SearchFactsFTS(context.Background(), s.Memory, DefaultConfig(), "Jane Street", 10, now)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	var highScore, lowScore float64
	for _, h := range hits {
		if h.Fact.ConfidenceTier == store.ConfidenceHigh {
			highScore = h.Score
		} else {
			lowScore = h.Score
		}
	}
	require.GreaterOrEqual(t, highScore, lowScore)
}

func TestSearchFactsHybrid_NoEmbedderEqualsFTS(t *testing.T) {
	s := openTestDB(t)
	now := idtime.Now()
	insertFact(t, s, "loves hiking in the Sierras", "loves hiking", store.ConfidenceMedium, now)

	ctx := context.Background()
	ftsHits, err := SearchFactsFTS(ctx, s.Memory, DefaultConfig(), "hiking", 10, now)
	require.NoError(t, err)

	hybridHits, err := SearchFactsHybrid(ctx, s.Memory, DefaultConfig(), nil, false, "hiking", 10, now)
	require.NoError(t, err)

	require.Equal(t, len(ftsHits), len(hybridHits))
	for i := range ftsHits {
		require.Equal(t, ftsHits[i].Fact.FactID, hybridHits[i].Fact.FactID)
		require.InDelta(t, ftsHits[i].Score, hybridHits[i].Score, 1e-9)
	}
}

func TestSearchEpisodesFTS_EmptyQueryReturnsEmpty(t *testing.T) {
	s := openTestDB(t)
	hits, err := SearchEpisodesFTS(context.Background(), s.Memory, DefaultConfig(), "   ", 10, idtime.Now())
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestSanitizeFTSQuery_StripsOperators(t *testing.T) {
	expr := sanitizeFTSQuery(`Jane Street* OR "hack" -- NEAR(x,y)`)
	require.NotContains(t, expr, "*")
	require.Contains(t, expr, `"Jane"`)
	require.Contains(t, expr, `"Street"`)
}
