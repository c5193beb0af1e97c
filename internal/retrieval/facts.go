package retrieval

import (
	"context"
	"database/sql"
	"sort"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/llmiface"
	"github.com/arjunblj/memorycore/internal/store"
)

// FactHit pairs a Fact with its retrieval score.
type FactHit struct {
	Fact  store.Fact
	Score float64
}

// SearchFactsFTS is §4.C's FTS-only searchFacts. An empty or
// all-punctuation query returns no results (§8 boundary:
// "searchFactsFts("") returns empty").
func SearchFactsFTS(ctx context.Context, db *sql.DB, cfg Config, query string, limit int, now idtime.Millis) ([]FactHit, error) {
	expr := sanitizeFTSQuery(query)
	if expr == "" {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT f.fact_id, f.person_id, f.subject, f.content, f.category, f.fact_type,
		       f.temporal_scope, f.evidence_quote, f.confidence_tier, f.is_current,
		       f.last_accessed_at_ms, f.created_at_ms, ranked.rn
		FROM (
			SELECT rowid AS fact_id, row_number() OVER (ORDER BY rank) AS rn
			FROM facts_fts WHERE facts_fts MATCH ?
			LIMIT ?
		) ranked
		JOIN facts f ON f.fact_id = ranked.fact_id
	`, expr, fetchLimit(limit))
	if err != nil {
		return nil, &errs.RetrievalError{Op: "search_facts_fts", Err: err}
	}
	defer rows.Close()

	var hits []FactHit
	for rows.Next() {
		fact, rank, err := scanFactRow(rows)
		if err != nil {
			return nil, &errs.RetrievalError{Op: "scan_fact_row", Err: err}
		}
		hits = append(hits, FactHit{
			Fact:  fact,
			Score: ftsOnlyScore(cfg, rank, fact.CreatedAtMs, now, fact.ConfidenceTier),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.RetrievalError{Op: "search_facts_fts", Err: err}
	}

	sortHitsDesc(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchFactsHybrid is §4.C's hybrid searchFacts: FTS ranks fused with a
// vector top-k cosine scan via reciprocal-rank fusion. Degrades silently to
// FTS-only when no embedder is configured, vector tables are unavailable,
// or embedding the query fails (§4.C, §7 RetrievalError policy).
func SearchFactsHybrid(ctx context.Context, db *sql.DB, cfg Config, embedder llmiface.Embedder, vectorEnabled bool, query string, limit int, now idtime.Millis) ([]FactHit, error) {
	if embedder == nil || !vectorEnabled {
		return SearchFactsFTS(ctx, db, cfg, query, limit, now)
	}

	queryVec, err := embedder.Embed(ctx, query)
	if err != nil {
		return SearchFactsFTS(ctx, db, cfg, query, limit, now)
	}
	unitQuery, qNorm := l2Normalize(queryVec)

	expr := sanitizeFTSQuery(query)
	ftsRanks := map[int64]int{}
	if expr != "" {
		rows, err := db.QueryContext(ctx, `
			SELECT rowid, row_number() OVER (ORDER BY rank) AS rn
			FROM facts_fts WHERE facts_fts MATCH ? LIMIT ?
		`, expr, fetchLimit(limit))
		if err != nil {
			return nil, &errs.RetrievalError{Op: "search_facts_hybrid_fts", Err: err}
		}
		for rows.Next() {
			var id int64
			var rn int
			if err := rows.Scan(&id, &rn); err != nil {
				rows.Close()
				return nil, &errs.RetrievalError{Op: "scan_fts_rank", Err: err}
			}
			ftsRanks[id] = rn
		}
		rows.Close()
	}

	vecMatches, err := topKCosine(ctx, db, "facts_vec", "fact_id", unitQuery, qNorm, fetchLimit(limit))
	if err != nil {
		return nil, &errs.RetrievalError{Op: "search_facts_hybrid_vec", Err: err}
	}
	vecRanks := map[int64]int{}
	for i, m := range vecMatches {
		vecRanks[m.id] = i + 1
	}

	ids := map[int64]struct{}{}
	for id := range ftsRanks {
		ids[id] = struct{}{}
	}
	for id := range vecRanks {
		ids[id] = struct{}{}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var hits []FactHit
	for id := range ids {
		fact, err := loadFact(ctx, db, id)
		if err != nil {
			continue // row may have been deleted between the scan and here
		}
		hits = append(hits, FactHit{
			Fact:  fact,
			Score: hybridScore(cfg, ftsRanks[id], vecRanks[id], fact.CreatedAtMs, now, fact.ConfidenceTier),
		})
	}

	sortHitsDesc(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func loadFact(ctx context.Context, db *sql.DB, id int64) (store.Fact, error) {
	row := db.QueryRowContext(ctx, `
		SELECT fact_id, person_id, subject, content, category, fact_type,
		       temporal_scope, evidence_quote, confidence_tier, is_current,
		       last_accessed_at_ms, created_at_ms
		FROM facts WHERE fact_id = ?
	`, id)
	return scanFactScannable(row)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFactScannable(row scannable) (store.Fact, error) {
	var f store.Fact
	var isCurrent int
	err := row.Scan(&f.FactID, &f.PersonID, &f.Subject, &f.Content, &f.Category, &f.FactType,
		&f.TemporalScope, &f.EvidenceQuote, &f.ConfidenceTier, &isCurrent,
		&f.LastAccessedAtMs, &f.CreatedAtMs)
	f.IsCurrent = isCurrent != 0
	return f, err
}

func scanFactRow(rows *sql.Rows) (store.Fact, int, error) {
	var f store.Fact
	var isCurrent int
	var rank int
	err := rows.Scan(&f.FactID, &f.PersonID, &f.Subject, &f.Content, &f.Category, &f.FactType,
		&f.TemporalScope, &f.EvidenceQuote, &f.ConfidenceTier, &isCurrent,
		&f.LastAccessedAtMs, &f.CreatedAtMs, &rank)
	f.IsCurrent = isCurrent != 0
	return f, rank, err
}

func sortHitsDesc(hits []FactHit) {
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
}
