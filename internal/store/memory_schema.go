package store

import (
	"context"
	"database/sql"
)

// memoryMigrations builds the full memory.db schema: people, facts,
// episodes, lessons, group_capsules, the two dirty queues, observation
// counters, and the FTS5 external-content indexes §4.B requires for
// facts.content/subject and episodes.content. Vector tables are created
// separately (vector.go) since their column width depends on the
// configured embedding dimension and must support drop/recreate.
func memoryMigrations() []migration {
	return []migration{
		{version: 1, name: "people", apply: createPeopleTable},
		{version: 2, name: "facts", apply: createFactsTable},
		{version: 3, name: "episodes", apply: createEpisodesTable},
		{version: 4, name: "lessons", apply: createLessonsTable},
		{version: 5, name: "group_capsules", apply: createGroupCapsulesTable},
		{version: 6, name: "dirty_queues", apply: createDirtyQueueTables},
		{version: 7, name: "observation_counters", apply: createObservationCountersTable},
		{version: 8, name: "facts_fts", apply: createFactsFTS},
		{version: 9, name: "episodes_fts", apply: createEpisodesFTS},
	}
}

func createPeopleTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE people (
			person_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL DEFAULT '',
			channel_user_id TEXT NOT NULL,
			relationship_score REAL NOT NULL DEFAULT 0,
			trust_tier_override TEXT NOT NULL DEFAULT '',
			capsule TEXT NOT NULL DEFAULT '',
			capsule_updated_at_ms INTEGER NOT NULL DEFAULT 0,
			public_style_capsule TEXT NOT NULL DEFAULT '',
			current_concerns TEXT NOT NULL DEFAULT '[]',
			goals TEXT NOT NULL DEFAULT '[]',
			preferences TEXT NOT NULL DEFAULT '{}',
			last_mood_signal TEXT NOT NULL DEFAULT '',
			curiosity_questions TEXT NOT NULL DEFAULT '[]',
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX idx_people_channel_user ON people(channel_user_id);
	`)
	return err
}

func createFactsTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE facts (
			fact_id INTEGER PRIMARY KEY AUTOINCREMENT,
			person_id TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'misc',
			fact_type TEXT NOT NULL DEFAULT 'factual',
			temporal_scope TEXT NOT NULL DEFAULT 'unknown',
			evidence_quote TEXT NOT NULL DEFAULT '',
			confidence_tier TEXT NOT NULL DEFAULT 'medium',
			is_current INTEGER NOT NULL DEFAULT 1,
			last_accessed_at_ms INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL
		);
		CREATE INDEX idx_facts_person_id ON facts(person_id);
		CREATE INDEX idx_facts_is_current ON facts(is_current);
		CREATE INDEX idx_facts_category ON facts(category);
	`)
	return err
}

func createEpisodesTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE episodes (
			episode_id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			person_id TEXT NOT NULL DEFAULT '',
			is_group INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			last_extracted_at_ms INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL
		);
		CREATE INDEX idx_episodes_chat_id ON episodes(chat_id);
		CREATE INDEX idx_episodes_person_id ON episodes(person_id);
		CREATE INDEX idx_episodes_last_extracted ON episodes(last_extracted_at_ms);
		CREATE INDEX idx_episodes_created_at ON episodes(created_at_ms);
	`)
	return err
}

func createLessonsTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE lessons (
			lesson_id INTEGER PRIMARY KEY AUTOINCREMENT,
			category TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			rule TEXT NOT NULL DEFAULT '',
			alternative TEXT NOT NULL DEFAULT '',
			person_id TEXT NOT NULL DEFAULT '',
			episode_refs TEXT NOT NULL DEFAULT '[]',
			confidence REAL NOT NULL DEFAULT 0,
			times_validated INTEGER NOT NULL DEFAULT 0,
			times_violated INTEGER NOT NULL DEFAULT 0,
			promoted INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL
		);
		CREATE INDEX idx_lessons_type ON lessons(type);
		CREATE INDEX idx_lessons_created_at ON lessons(created_at_ms);
	`)
	return err
}

func createGroupCapsulesTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE group_capsules (
			chat_id TEXT PRIMARY KEY,
			capsule TEXT NOT NULL DEFAULT '',
			updated_at_ms INTEGER NOT NULL DEFAULT 0
		);
	`)
	return err
}

// createDirtyQueueTables creates the two dirty-queue tables the claim
// protocol in §4.D operates on: group-capsule recomputation keyed by
// chat_id, and public-style-capsule recomputation keyed by person_id.
func createDirtyQueueTables(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE dirty_group_capsules (
			chat_id TEXT PRIMARY KEY,
			first_dirty_at_ms INTEGER NOT NULL,
			claim_until_ms INTEGER
		);
		CREATE TABLE dirty_public_styles (
			person_id TEXT PRIMARY KEY,
			first_dirty_at_ms INTEGER NOT NULL,
			claim_until_ms INTEGER
		);
	`)
	return err
}

func createObservationCountersTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE observation_counters (
			person_id TEXT PRIMARY KEY,
			avg_response_length REAL NOT NULL DEFAULT 0,
			avg_incoming_length REAL NOT NULL DEFAULT 0,
			active_hours_bitmask INTEGER NOT NULL DEFAULT 0,
			conversation_count INTEGER NOT NULL DEFAULT 0,
			sample_count INTEGER NOT NULL DEFAULT 0
		);
	`)
	return err
}

// createFactsFTS builds an external-content FTS5 index over facts.content
// and facts.subject, kept in sync by triggers so callers never write to the
// FTS table directly — they write facts and the index follows.
func createFactsFTS(ctx context.Context, conn *sql.Conn) error {
	stmts := []string{
		`CREATE VIRTUAL TABLE facts_fts USING fts5(
			content, subject, content='facts', content_rowid='fact_id'
		)`,
		`CREATE TRIGGER facts_ai AFTER INSERT ON facts BEGIN
			INSERT INTO facts_fts(rowid, content, subject) VALUES (new.fact_id, new.content, new.subject);
		END`,
		`CREATE TRIGGER facts_ad AFTER DELETE ON facts BEGIN
			INSERT INTO facts_fts(facts_fts, rowid, content, subject) VALUES ('delete', old.fact_id, old.content, old.subject);
		END`,
		`CREATE TRIGGER facts_au AFTER UPDATE ON facts BEGIN
			INSERT INTO facts_fts(facts_fts, rowid, content, subject) VALUES ('delete', old.fact_id, old.content, old.subject);
			INSERT INTO facts_fts(rowid, content, subject) VALUES (new.fact_id, new.content, new.subject);
		END`,
	}
	for _, s := range stmts {
		if _, err := conn.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func createEpisodesFTS(ctx context.Context, conn *sql.Conn) error {
	stmts := []string{
		`CREATE VIRTUAL TABLE episodes_fts USING fts5(
			content, content='episodes', content_rowid='episode_id'
		)`,
		`CREATE TRIGGER episodes_ai AFTER INSERT ON episodes BEGIN
			INSERT INTO episodes_fts(rowid, content) VALUES (new.episode_id, new.content);
		END`,
		`CREATE TRIGGER episodes_ad AFTER DELETE ON episodes BEGIN
			INSERT INTO episodes_fts(episodes_fts, rowid, content) VALUES ('delete', old.episode_id, old.content);
		END`,
		`CREATE TRIGGER episodes_au AFTER UPDATE ON episodes BEGIN
			INSERT INTO episodes_fts(episodes_fts, rowid, content) VALUES ('delete', old.episode_id, old.content);
			INSERT INTO episodes_fts(rowid, content) VALUES (new.episode_id, new.content);
		END`,
	}
	for _, s := range stmts {
		if _, err := conn.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
