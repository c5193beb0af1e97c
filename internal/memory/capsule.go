package memory

import (
	"context"
	"database/sql"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/store"
)

// UpsertGroupCapsule writes the synthesized group digest (§4.D, §4.G step 1).
func (s *Store) UpsertGroupCapsule(ctx context.Context, chatID idtime.ChatID, capsule string, updatedAtMs idtime.Millis) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_capsules (chat_id, capsule, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET capsule = excluded.capsule, updated_at_ms = excluded.updated_at_ms
	`, chatID, capsule, int64(updatedAtMs))
	if err != nil {
		return &errs.StorageError{Kind: errs.StorageIO, Op: "upsert_group_capsule", Err: err}
	}
	return nil
}

// GetGroupCapsule returns nil if chatID has no capsule yet.
func (s *Store) GetGroupCapsule(ctx context.Context, chatID idtime.ChatID) (*store.GroupCapsule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT chat_id, capsule, updated_at_ms FROM group_capsules WHERE chat_id = ?`, chatID)
	var c store.GroupCapsule
	var updated int64
	err := row.Scan(&c.ChatID, &c.Capsule, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "get_group_capsule", Err: err}
	}
	c.UpdatedAtMs = idtime.Millis(updated)
	return &c, nil
}

// SetPersonCapsule writes a person's private capsule, leaving every other
// field untouched (§4.G step 4's capsule synthesis writes only the capsule).
func (s *Store) SetPersonCapsule(ctx context.Context, personID idtime.PersonID, capsule string, updatedAtMs idtime.Millis) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE people SET capsule = ?, capsule_updated_at_ms = ? WHERE person_id = ?
	`, capsule, int64(updatedAtMs), personID)
	if err != nil {
		return &errs.StorageError{Kind: errs.StorageIO, Op: "set_person_capsule", Err: err}
	}
	return nil
}

// SetPublicStyleCapsule writes a person's cross-group-safe tone digest.
func (s *Store) SetPublicStyleCapsule(ctx context.Context, personID idtime.PersonID, capsule string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE people SET public_style_capsule = ? WHERE person_id = ?`, capsule, personID)
	if err != nil {
		return &errs.StorageError{Kind: errs.StorageIO, Op: "set_public_style_capsule", Err: err}
	}
	return nil
}

// GetPerson resolves a Person by id, for consolidation's capsule-refresh
// and pruning passes. Returns nil if not found.
func (s *Store) GetPerson(ctx context.Context, personID idtime.PersonID) (*store.Person, error) {
	return s.getPerson(ctx, personID)
}

// ListPeopleWithStaleCapsules lists up to limit people whose capsule is
// empty or older than olderThanMs, for §4.G step 4.
func (s *Store) ListPeopleWithStaleCapsules(ctx context.Context, olderThanMs idtime.Millis, limit int) ([]store.Person, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person_id, display_name, channel, channel_user_id, relationship_score,
		       trust_tier_override, capsule, capsule_updated_at_ms, public_style_capsule,
		       current_concerns, goals, preferences, last_mood_signal, curiosity_questions,
		       created_at_ms, updated_at_ms
		FROM people WHERE capsule = '' OR capsule_updated_at_ms < ?
		ORDER BY capsule_updated_at_ms ASC LIMIT ?
	`, int64(olderThanMs), limit)
	if err != nil {
		return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "list_stale_capsules", Err: err}
	}
	defer rows.Close()

	var out []store.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "scan_stale_capsule_person", Err: err}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListEpisodesForChatSince lists a chat's episodes created at or after
// sinceMs, oldest first, for group-capsule synthesis (§4.G step 1).
func (s *Store) ListEpisodesForChatSince(ctx context.Context, chatID idtime.ChatID, sinceMs idtime.Millis) ([]store.Episode, error) {
	return s.listEpisodes(ctx, `WHERE chat_id = ? AND created_at_ms >= ? ORDER BY episode_id ASC`, chatID, int64(sinceMs))
}

// ListEpisodesForPersonSince lists a person's episodes across every chat
// created at or after sinceMs, for public-style synthesis and concern/goal
// pruning (§4.G steps 2 and 4).
func (s *Store) ListEpisodesForPersonSince(ctx context.Context, personID idtime.PersonID, sinceMs idtime.Millis) ([]store.Episode, error) {
	return s.listEpisodes(ctx, `WHERE person_id = ? AND created_at_ms >= ? ORDER BY episode_id ASC`, personID, int64(sinceMs))
}

// ListUnextractedEpisodes lists up to limit episodes never processed by
// the extractor (last_extracted_at_ms = 0), oldest first, for the
// catch-up extraction pass (§4.G step 3).
func (s *Store) ListUnextractedEpisodes(ctx context.Context, limit int) ([]store.Episode, error) {
	return s.listEpisodes(ctx, `WHERE last_extracted_at_ms = 0 ORDER BY episode_id ASC LIMIT ?`, limit)
}

func (s *Store) listEpisodes(ctx context.Context, whereClause string, args ...any) ([]store.Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT episode_id, chat_id, person_id, is_group, content, last_extracted_at_ms, created_at_ms
		FROM episodes `+whereClause, args...)
	if err != nil {
		return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "list_episodes", Err: err}
	}
	defer rows.Close()

	var out []store.Episode
	for rows.Next() {
		var e store.Episode
		var isGroup int
		if err := rows.Scan(&e.EpisodeID, &e.ChatID, &e.PersonID, &isGroup, &e.Content, &e.LastExtractedAtMs, &e.CreatedAtMs); err != nil {
			return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "scan_episode", Err: err}
		}
		e.IsGroup = isGroup != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListCurrentFactsForPerson lists a person's current facts, for the
// dedupe/contradiction-retirement pass (§4.G step 4).
func (s *Store) ListCurrentFactsForPerson(ctx context.Context, personID idtime.PersonID) ([]store.Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fact_id, person_id, subject, content, category, fact_type, temporal_scope,
		       evidence_quote, confidence_tier, is_current, last_accessed_at_ms, created_at_ms
		FROM facts WHERE person_id = ? AND is_current = 1
		ORDER BY created_at_ms ASC
	`, personID)
	if err != nil {
		return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "list_current_facts", Err: err}
	}
	defer rows.Close()

	var out []store.Fact
	for rows.Next() {
		var f store.Fact
		var isCurrent int
		if err := rows.Scan(&f.FactID, &f.PersonID, &f.Subject, &f.Content, &f.Category, &f.FactType, &f.TemporalScope,
			&f.EvidenceQuote, &f.ConfidenceTier, &isCurrent, &f.LastAccessedAtMs, &f.CreatedAtMs); err != nil {
			return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "scan_current_fact", Err: err}
		}
		f.IsCurrent = isCurrent != 0
		out = append(out, f)
	}
	return out, rows.Err()
}
