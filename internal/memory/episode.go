package memory

import (
	"context"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/retrieval"
	"github.com/arjunblj/memorycore/internal/store"
)

// LogEpisode inserts an episode row (its FTS row follows via trigger in the
// same implicit transaction). If isGroup, the owning chat's group capsule is
// marked dirty; if a personId is attached, that person's public style is
// also marked dirty — both recomputed lazily by the Consolidation Loop
// (§4.D, §4.G).
func (s *Store) LogEpisode(ctx context.Context, e store.Episode) (idtime.EpisodeID, error) {
	if e.CreatedAtMs == 0 {
		e.CreatedAtMs = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (chat_id, person_id, is_group, content, last_extracted_at_ms, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ChatID, e.PersonID, boolToInt(e.IsGroup), e.Content, int64(e.LastExtractedAtMs), int64(e.CreatedAtMs))
	if err != nil {
		return 0, &errs.StorageError{Kind: errs.StorageIO, Op: "log_episode", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &errs.StorageError{Kind: errs.StorageIO, Op: "log_episode_id", Err: err}
	}

	if e.IsGroup {
		if err := s.MarkGroupCapsuleDirty(ctx, e.ChatID); err != nil {
			return idtime.EpisodeID(id), err
		}
	}
	if e.PersonID != "" {
		if err := s.MarkPublicStyleDirty(ctx, e.PersonID); err != nil {
			return idtime.EpisodeID(id), err
		}
	}

	return idtime.EpisodeID(id), nil
}

// MarkEpisodeExtracted records the last time the Extractor processed an
// episode, used by the catch-up extraction pass (§4.G step 3) to find
// episodes older than a threshold that were never extracted.
func (s *Store) MarkEpisodeExtracted(ctx context.Context, id idtime.EpisodeID, atMs idtime.Millis) error {
	_, err := s.db.ExecContext(ctx, `UPDATE episodes SET last_extracted_at_ms = ? WHERE episode_id = ?`,
		int64(atMs), int64(id))
	if err != nil {
		return &errs.StorageError{Kind: errs.StorageIO, Op: "mark_episode_extracted", Err: err}
	}
	return nil
}

// HybridSearchEpisodes delegates to retrieval, mirroring HybridSearchFacts.
func (s *Store) HybridSearchEpisodes(ctx context.Context, query string, limit int) ([]retrieval.EpisodeHit, error) {
	return retrieval.SearchEpisodesHybrid(ctx, s.db, s.retrieval, s.embedder, s.vectorEnabled, query, limit, s.now())
}
