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

// EpisodeHit pairs an Episode with its retrieval score.
type EpisodeHit struct {
	Episode store.Episode
	Score   float64
}

// SearchEpisodesFTS is §4.C's FTS-only searchEpisodes. Episodes carry no
// confidence tier, so the confidence multiplier is always neutral.
func SearchEpisodesFTS(ctx context.Context, db *sql.DB, cfg Config, query string, limit int, now idtime.Millis) ([]EpisodeHit, error) {
	expr := sanitizeFTSQuery(query)
	if expr == "" {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT e.episode_id, e.chat_id, e.person_id, e.is_group, e.content,
		       e.last_extracted_at_ms, e.created_at_ms, ranked.rn
		FROM (
			SELECT rowid AS episode_id, row_number() OVER (ORDER BY rank) AS rn
			FROM episodes_fts WHERE episodes_fts MATCH ?
			LIMIT ?
		) ranked
		JOIN episodes e ON e.episode_id = ranked.episode_id
	`, expr, fetchLimit(limit))
	if err != nil {
		return nil, &errs.RetrievalError{Op: "search_episodes_fts", Err: err}
	}
	defer rows.Close()

	var hits []EpisodeHit
	for rows.Next() {
		ep, rank, err := scanEpisodeRow(rows)
		if err != nil {
			return nil, &errs.RetrievalError{Op: "scan_episode_row", Err: err}
		}
		hits = append(hits, EpisodeHit{
			Episode: ep,
			Score:   ftsOnlyScore(cfg, rank, ep.CreatedAtMs, now, ""),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.RetrievalError{Op: "search_episodes_fts", Err: err}
	}

	sortEpisodeHitsDesc(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchEpisodesHybrid is §4.C's hybrid searchEpisodes, mirroring
// SearchFactsHybrid against episodes_vec.
func SearchEpisodesHybrid(ctx context.Context, db *sql.DB, cfg Config, embedder llmiface.Embedder, vectorEnabled bool, query string, limit int, now idtime.Millis) ([]EpisodeHit, error) {
	if embedder == nil || !vectorEnabled {
		return SearchEpisodesFTS(ctx, db, cfg, query, limit, now)
	}

	queryVec, err := embedder.Embed(ctx, query)
	if err != nil {
		return SearchEpisodesFTS(ctx, db, cfg, query, limit, now)
	}
	unitQuery, qNorm := l2Normalize(queryVec)

	expr := sanitizeFTSQuery(query)
	ftsRanks := map[int64]int{}
	if expr != "" {
		rows, err := db.QueryContext(ctx, `
			SELECT rowid, row_number() OVER (ORDER BY rank) AS rn
			FROM episodes_fts WHERE episodes_fts MATCH ? LIMIT ?
		`, expr, fetchLimit(limit))
		if err != nil {
			return nil, &errs.RetrievalError{Op: "search_episodes_hybrid_fts", Err: err}
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

	vecMatches, err := topKCosine(ctx, db, "episodes_vec", "episode_id", unitQuery, qNorm, fetchLimit(limit))
	if err != nil {
		return nil, &errs.RetrievalError{Op: "search_episodes_hybrid_vec", Err: err}
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

	var hits []EpisodeHit
	for id := range ids {
		ep, err := loadEpisode(ctx, db, id)
		if err != nil {
			continue
		}
		hits = append(hits, EpisodeHit{
			Episode: ep,
			Score:   hybridScore(cfg, ftsRanks[id], vecRanks[id], ep.CreatedAtMs, now, ""),
		})
	}

	sortEpisodeHitsDesc(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func loadEpisode(ctx context.Context, db *sql.DB, id int64) (store.Episode, error) {
	row := db.QueryRowContext(ctx, `
		SELECT episode_id, chat_id, person_id, is_group, content, last_extracted_at_ms, created_at_ms
		FROM episodes WHERE episode_id = ?
	`, id)
	var ep store.Episode
	var isGroup int
	err := row.Scan(&ep.EpisodeID, &ep.ChatID, &ep.PersonID, &isGroup, &ep.Content,
		&ep.LastExtractedAtMs, &ep.CreatedAtMs)
	ep.IsGroup = isGroup != 0
	return ep, err
}

func scanEpisodeRow(rows *sql.Rows) (store.Episode, int, error) {
	var ep store.Episode
	var isGroup int
	var rank int
	err := rows.Scan(&ep.EpisodeID, &ep.ChatID, &ep.PersonID, &isGroup, &ep.Content,
		&ep.LastExtractedAtMs, &ep.CreatedAtMs, &rank)
	ep.IsGroup = isGroup != 0
	return ep, rank, err
}

func sortEpisodeHitsDesc(hits []EpisodeHit) {
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
}
