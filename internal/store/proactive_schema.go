package store

import (
	"context"
	"database/sql"
)

// proactiveMigrations builds the independent proactive.db schema §4.E
// requires: proactive_events, proactive_log, and open_loops. Kept in a
// separate database from memory.db so the scheduler can be backed up,
// inspected, and claimed against independently of the memory store.
func proactiveMigrations() []migration {
	return []migration{
		{version: 1, name: "proactive_events", apply: createProactiveEventsTable},
		{version: 2, name: "proactive_log", apply: createProactiveLogTable},
		{version: 3, name: "open_loops", apply: createOpenLoopsTable},
	}
}

func createProactiveEventsTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE proactive_events (
			event_id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			subject TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			trigger_at_ms INTEGER NOT NULL,
			recurrence TEXT NOT NULL DEFAULT '',
			delivered INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL,
			claim_id TEXT NOT NULL DEFAULT '',
			claim_until_ms INTEGER NOT NULL DEFAULT 0
		);
		CREATE UNIQUE INDEX idx_proactive_events_dedupe
			ON proactive_events(chat_id, kind, subject, trigger_at_ms, recurrence);
		CREATE INDEX idx_proactive_events_pending
			ON proactive_events(delivered, trigger_at_ms, claim_until_ms);
	`)
	return err
}

func createProactiveLogTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE proactive_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			sent_at_ms INTEGER NOT NULL,
			responded INTEGER NOT NULL DEFAULT 0,
			proactive_event_id INTEGER NOT NULL DEFAULT 0,
			is_group INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX idx_proactive_log_chat_id ON proactive_log(chat_id, sent_at_ms);
	`)
	return err
}

func createOpenLoopsTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE open_loops (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			subject_key TEXT NOT NULL,
			subject TEXT NOT NULL,
			category TEXT NOT NULL,
			emotional_weight TEXT NOT NULL DEFAULT 'low',
			anchor_date_ms INTEGER NOT NULL DEFAULT 0,
			evidence_quote TEXT NOT NULL DEFAULT '',
			follow_up_question TEXT NOT NULL DEFAULT '',
			mention_count INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'open',
			follow_up_event_id INTEGER NOT NULL DEFAULT 0
		);
		CREATE UNIQUE INDEX idx_open_loops_chat_subject ON open_loops(chat_id, subject_key);
		CREATE INDEX idx_open_loops_status ON open_loops(chat_id, status);
	`)
	return err
}
