package scheduler

import (
	"context"
	"database/sql"
	"strings"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/store"
)

// NormalizeSubjectKey lowercases and strips subject to alphanumerics,
// truncated to 80 chars (§4.F step 7), giving open loops a stable dedupe
// key independent of exact wording.
func NormalizeSubjectKey(subject string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(subject) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	key := b.String()
	if len(key) > 80 {
		key = key[:80]
	}
	return key
}

// UpsertOpenLoop inserts a new open loop or, if one with the same
// (chatId, subjectKey) already exists, bumps its mentionCount and refreshes
// its evidence quote and follow-up question instead of duplicating it. The
// existing row's status is left as it is, so a resolved loop stays resolved.
func (s *Scheduler) UpsertOpenLoop(ctx context.Context, loop store.OpenLoop) (int64, error) {
	if loop.SubjectKey == "" {
		loop.SubjectKey = NormalizeSubjectKey(loop.Subject)
	}
	if loop.Status == "" {
		loop.Status = store.LoopOpen
	}
	if loop.MentionCount == 0 {
		loop.MentionCount = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO open_loops (chat_id, subject_key, subject, category, emotional_weight,
		                         anchor_date_ms, evidence_quote, follow_up_question, mention_count,
		                         status, follow_up_event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, subject_key) DO UPDATE SET
			mention_count = open_loops.mention_count + 1,
			evidence_quote = excluded.evidence_quote,
			follow_up_question = excluded.follow_up_question
	`, loop.ChatID, loop.SubjectKey, loop.Subject, loop.Category, loop.EmotionalWeight,
		int64(loop.AnchorDateMs), loop.EvidenceQuote, loop.FollowUpQuestion, loop.MentionCount,
		loop.Status, int64(loop.FollowUpEventID))
	if err != nil {
		return 0, &errs.SchedulerError{Op: "upsert_open_loop", Err: err}
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM open_loops WHERE chat_id = ? AND subject_key = ?`, loop.ChatID, loop.SubjectKey).
		Scan(&id)
	if err != nil {
		return 0, &errs.SchedulerError{Op: "upsert_open_loop_lookup", Err: err}
	}
	return id, nil
}

// ResolveOpenLoop marks the loop resolved and cancels its attached
// follow-up event, if any (§4.F step 7).
func (s *Scheduler) ResolveOpenLoop(ctx context.Context, chatID idtime.ChatID, subjectKey string) error {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, follow_up_event_id FROM open_loops WHERE chat_id = ? AND subject_key = ? AND status = ?`,
		chatID, subjectKey, store.LoopOpen)
	var id, followUpEventID int64
	if err := row.Scan(&id, &followUpEventID); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return &errs.SchedulerError{Op: "resolve_open_loop_lookup", Err: err}
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE open_loops SET status = ? WHERE id = ?`, store.LoopResolved, id); err != nil {
		return &errs.SchedulerError{Op: "resolve_open_loop", Err: err}
	}

	if followUpEventID != 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM proactive_events WHERE event_id = ?`, followUpEventID); err != nil {
			return &errs.SchedulerError{Op: "cancel_open_loop_follow_up", Err: err}
		}
	}
	return nil
}

// ListOpenLoopsForChat lists the open (unresolved) loops for chatId.
func (s *Scheduler) ListOpenLoopsForChat(ctx context.Context, chatID idtime.ChatID) ([]store.OpenLoop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, subject_key, subject, category, emotional_weight, anchor_date_ms,
		       evidence_quote, follow_up_question, mention_count, status, follow_up_event_id
		FROM open_loops WHERE chat_id = ? AND status = ?
		ORDER BY id ASC
	`, chatID, store.LoopOpen)
	if err != nil {
		return nil, &errs.SchedulerError{Op: "list_open_loops", Err: err}
	}
	defer rows.Close()

	var out []store.OpenLoop
	for rows.Next() {
		var l store.OpenLoop
		if err := rows.Scan(&l.ID, &l.ChatID, &l.SubjectKey, &l.Subject, &l.Category, &l.EmotionalWeight,
			&l.AnchorDateMs, &l.EvidenceQuote, &l.FollowUpQuestion, &l.MentionCount, &l.Status,
			&l.FollowUpEventID); err != nil {
			return nil, &errs.SchedulerError{Op: "scan_open_loop", Err: err}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// AttachFollowUpEventToOpenLoop records that eventID is the scheduled
// follow-up for loopID.
func (s *Scheduler) AttachFollowUpEventToOpenLoop(ctx context.Context, loopID int64, eventID idtime.EventID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE open_loops SET follow_up_event_id = ? WHERE id = ?`, int64(eventID), loopID)
	if err != nil {
		return &errs.SchedulerError{Op: "attach_follow_up_event", Err: err}
	}
	return nil
}
