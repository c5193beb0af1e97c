package scheduler

import (
	"context"
	"strings"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/idtime"
)

// isGroupChat derives isGroup from a chatId the way every adapter in this
// core is expected to encode it: group-chat ids carry a "group:" prefix
// (§3: "chat ids are opaque, adapter-routed"; the adapter is the one place
// that knows the channel's own group-vs-DM representation, so the core
// only needs a stable convention on the string it's handed).
func isGroupChat(chatID idtime.ChatID) bool {
	return strings.HasPrefix(string(chatID), "group:")
}

// LogProactiveSend appends a proactive_log row, deriving isGroup from
// chatId. eventID is 0 when the send wasn't tied to a scheduled event.
func (s *Scheduler) LogProactiveSend(ctx context.Context, chatID idtime.ChatID, eventID idtime.EventID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proactive_log (chat_id, sent_at_ms, responded, proactive_event_id, is_group)
		VALUES (?, ?, 0, ?, ?)
	`, chatID, int64(s.now()), int64(eventID), boolToInt(isGroupChat(chatID)))
	if err != nil {
		return &errs.SchedulerError{Op: "log_proactive_send", Err: err}
	}
	return nil
}

// MarkProactiveResponded sets responded=1 on the most recent unresponded
// row for chatId.
func (s *Scheduler) MarkProactiveResponded(ctx context.Context, chatID idtime.ChatID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE proactive_log SET responded = 1 WHERE id = (
			SELECT id FROM proactive_log
			WHERE chat_id = ? AND responded = 0
			ORDER BY sent_at_ms DESC LIMIT 1
		)
	`, chatID)
	if err != nil {
		return &errs.SchedulerError{Op: "mark_proactive_responded", Err: err}
	}
	return nil
}

// CountRecentSends counts every proactive_log row sent within the last
// windowMs, across all chats.
func (s *Scheduler) CountRecentSends(ctx context.Context, windowMs int64) (int, error) {
	return s.countSince(ctx, `SELECT COUNT(*) FROM proactive_log WHERE sent_at_ms >= ?`, windowMs)
}

// CountRecentSendsForScope counts sends within windowMs scoped to DM or
// group chats (§4.E: "dm.{max_per_day, max_per_week} / group.{...}").
func (s *Scheduler) CountRecentSendsForScope(ctx context.Context, isGroup bool, windowMs int64) (int, error) {
	return s.countSince(ctx, `SELECT COUNT(*) FROM proactive_log WHERE is_group = ? AND sent_at_ms >= ?`,
		windowMs, boolToInt(isGroup))
}

// CountRecentSendsForChat counts sends within windowMs for a single chat
// (cooldown-after-user window).
func (s *Scheduler) CountRecentSendsForChat(ctx context.Context, chatID idtime.ChatID, windowMs int64) (int, error) {
	return s.countSince(ctx, `SELECT COUNT(*) FROM proactive_log WHERE chat_id = ? AND sent_at_ms >= ?`,
		windowMs, chatID)
}

// CountIgnoredRecent counts the trailing run of unresponded sends for
// chatId, used by the pause-after-N-ignored rule. It counts back from the
// most recent send until a responded=1 row is hit.
func (s *Scheduler) CountIgnoredRecent(ctx context.Context, chatID idtime.ChatID) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT responded FROM proactive_log WHERE chat_id = ? ORDER BY sent_at_ms DESC
	`, chatID)
	if err != nil {
		return 0, &errs.SchedulerError{Op: "count_ignored_recent", Err: err}
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var responded int
		if err := rows.Scan(&responded); err != nil {
			return 0, &errs.SchedulerError{Op: "count_ignored_recent_scan", Err: err}
		}
		if responded != 0 {
			break
		}
		count++
	}
	return count, rows.Err()
}

func (s *Scheduler) countSince(ctx context.Context, query string, windowMs int64, extraArgs ...any) (int, error) {
	cutoff := s.now() - idtime.Millis(windowMs)
	args := append(extraArgs, int64(cutoff))
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, &errs.SchedulerError{Op: "count_since", Err: err}
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
