package memory

import (
	"context"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/retrieval"
	"github.com/arjunblj/memorycore/internal/store"
)

// StoreFact writes the fact row (its FTS row follows via trigger, in the
// same implicit transaction as the INSERT), then best-effort writes a
// vector row outside that transaction (§4.D, §4.B). Defaults
// confidenceTier=medium and isCurrent=true when unset.
func (s *Store) StoreFact(ctx context.Context, f store.Fact) (idtime.FactID, error) {
	if f.ConfidenceTier == "" {
		f.ConfidenceTier = store.ConfidenceMedium
	}
	if f.CreatedAtMs == 0 {
		f.CreatedAtMs = s.now()
	}
	// IsCurrent has no "unset" sentinel distinct from false in a Go bool;
	// callers that want isCurrent=false must set it after the fact via
	// SetFactCurrent rather than through this constructor path, mirroring
	// the store's CRUD-then-retire lifecycle (§4.D: "setFactCurrent ...
	// never deletes").

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (person_id, subject, content, category, fact_type, temporal_scope,
		                    evidence_quote, confidence_tier, is_current, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.PersonID, f.Subject, f.Content, f.Category, f.FactType, f.TemporalScope,
		f.EvidenceQuote, f.ConfidenceTier, boolToInt(true), int64(f.CreatedAtMs))
	if err != nil {
		return 0, &errs.StorageError{Kind: errs.StorageIO, Op: "store_fact", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &errs.StorageError{Kind: errs.StorageIO, Op: "store_fact_id", Err: err}
	}

	if s.embedder != nil && s.vectorEnabled {
		if vec, err := s.embedder.Embed(ctx, f.Content); err == nil {
			_ = store.UpsertFactVector(ctx, s.db, id, vec) // best-effort: §4.B
		}
	}
	return idtime.FactID(id), nil
}

// UpdateFact updates content in both the base row and its FTS row
// atomically (the UPDATE trigger keeps FTS in sync); vector is refreshed
// best-effort.
func (s *Store) UpdateFact(ctx context.Context, factID idtime.FactID, content string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE facts SET content = ? WHERE fact_id = ?`, content, int64(factID))
	if err != nil {
		return &errs.StorageError{Kind: errs.StorageIO, Op: "update_fact", Err: err}
	}
	if s.embedder != nil && s.vectorEnabled {
		if vec, err := s.embedder.Embed(ctx, content); err == nil {
			_ = store.UpsertFactVector(ctx, s.db, int64(factID), vec)
		}
	}
	return nil
}

// SetFactCurrent is a logical retire; it never deletes (§4.D).
func (s *Store) SetFactCurrent(ctx context.Context, factID idtime.FactID, isCurrent bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE facts SET is_current = ? WHERE fact_id = ?`,
		boolToInt(isCurrent), int64(factID))
	if err != nil {
		return &errs.StorageError{Kind: errs.StorageIO, Op: "set_fact_current", Err: err}
	}
	return nil
}

// HybridSearchFacts delegates to retrieval (§4.D: "delegates to §4.C").
func (s *Store) HybridSearchFacts(ctx context.Context, query string, limit int) ([]retrieval.FactHit, error) {
	return retrieval.SearchFactsHybrid(ctx, s.db, s.retrieval, s.embedder, s.vectorEnabled, query, limit, s.now())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
