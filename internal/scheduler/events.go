// Package scheduler implements the Event Scheduler (§4.E): dedupe-on-insert
// proactive events, lease-based atomic multi-worker claiming, delivery
// bookkeeping, and the rate/suppression roll-ups the extractor and the
// proactive turn layer consult.
//
// Grounded on the teacher's SessionScheduler (engine/schedules.go) for its
// Start/Stop/run/sleepWithCancel ticker-loop idiom (see loop.go), and on
// internal/store's WithImmediateTx for the atomic-claim transaction shape —
// no pack example implements cross-process event claiming, so the claim
// protocol itself is built directly from spec.md §4.E's stated algorithm.
package scheduler

import (
	"context"
	"database/sql"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/store"
)

// Scheduler is the Event Scheduler. One instance per process, backed by the
// independent proactive.db (§4.E: "Backed by an independent small
// database").
type Scheduler struct {
	db    *sql.DB
	clock idtime.Clock
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithClock overrides the default system clock, for deterministic tests.
func WithClock(c idtime.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func New(db *sql.DB, opts ...Option) *Scheduler {
	s := &Scheduler{db: db, clock: idtime.SystemClock}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) now() idtime.Millis { return s.clock() }

// AddEvent inserts ev with an INSERT OR IGNORE keyed by the uniqueness
// tuple (chatId, kind, subject, triggerAtMs, recurrence); on collision it
// returns the existing row's id (§4.E, testable property 7).
func (s *Scheduler) AddEvent(ctx context.Context, ev store.ProactiveEvent) (idtime.EventID, error) {
	if ev.CreatedAtMs == 0 {
		ev.CreatedAtMs = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO proactive_events
			(kind, subject, chat_id, trigger_at_ms, recurrence, delivered, created_at_ms, claim_id, claim_until_ms)
		VALUES (?, ?, ?, ?, ?, 0, ?, '', 0)
	`, ev.Kind, ev.Subject, ev.ChatID, int64(ev.TriggerAtMs), ev.Recurrence, int64(ev.CreatedAtMs))
	if err != nil {
		return 0, &errs.SchedulerError{Op: "add_event", Err: err}
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		SELECT event_id FROM proactive_events
		WHERE chat_id = ? AND kind = ? AND subject = ? AND trigger_at_ms = ? AND recurrence = ?
	`, ev.ChatID, ev.Kind, ev.Subject, int64(ev.TriggerAtMs), ev.Recurrence).Scan(&id)
	if err != nil {
		return 0, &errs.SchedulerError{Op: "add_event_lookup", Err: err}
	}
	return idtime.EventID(id), nil
}

// ClaimedEvent pairs a claimed ProactiveEvent with the claimId the caller
// must present to MarkDelivered/ReleaseClaim.
type ClaimedEvent struct {
	Event   store.ProactiveEvent
	ClaimID string
}

// ClaimPendingEvents selects undelivered events due within windowMs whose
// claim is unset or expired, and atomically claims each via a conditional
// UPDATE that only succeeds while still unclaimed — safe across OS
// processes sharing the DB (§4.E, testable property/scenario S5).
func (s *Scheduler) ClaimPendingEvents(ctx context.Context, windowMs int64, limit int, leaseMs int64, claimID string) ([]ClaimedEvent, error) {
	now := s.now()
	horizon := now + idtime.Millis(windowMs)
	var claimed []ClaimedEvent

	err := store.WithImmediateTx(ctx, s.db, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT event_id FROM proactive_events
			WHERE delivered = 0 AND trigger_at_ms <= ?
			  AND (claim_until_ms IS NULL OR claim_until_ms < ?)
			ORDER BY trigger_at_ms ASC
			LIMIT ?
		`, int64(horizon), int64(now), limit)
		if err != nil {
			return err
		}
		var candidateIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			candidateIDs = append(candidateIDs, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		for _, id := range candidateIDs {
			res, err := conn.ExecContext(ctx, `
				UPDATE proactive_events SET claim_id = ?, claim_until_ms = ?
				WHERE event_id = ? AND delivered = 0
				  AND (claim_until_ms IS NULL OR claim_until_ms < ?)
			`, claimID, int64(now+idtime.Millis(leaseMs)), id, int64(now))
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n != 1 {
				continue // another worker claimed it first
			}
			ev, err := loadEvent(ctx, conn, id)
			if err != nil {
				return err
			}
			claimed = append(claimed, ClaimedEvent{Event: ev, ClaimID: claimID})
		}
		return nil
	})
	if err != nil {
		return nil, &errs.SchedulerError{Op: "claim_pending_events", Err: err}
	}
	return claimed, nil
}

func loadEvent(ctx context.Context, conn *sql.Conn, id int64) (store.ProactiveEvent, error) {
	var ev store.ProactiveEvent
	var delivered int
	err := conn.QueryRowContext(ctx, `
		SELECT event_id, kind, subject, chat_id, trigger_at_ms, recurrence, delivered,
		       created_at_ms, claim_id, claim_until_ms
		FROM proactive_events WHERE event_id = ?
	`, id).Scan(&ev.EventID, &ev.Kind, &ev.Subject, &ev.ChatID, &ev.TriggerAtMs, &ev.Recurrence,
		&delivered, &ev.CreatedAtMs, &ev.ClaimID, &ev.ClaimUntilMs)
	ev.Delivered = delivered != 0
	return ev, err
}

// MarkDelivered is idempotent; it is a no-op if claimId mismatches (lease
// lost — §7 "SchedulerError").
func (s *Scheduler) MarkDelivered(ctx context.Context, id idtime.EventID, claimID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE proactive_events SET delivered = 1 WHERE event_id = ? AND claim_id = ?
	`, int64(id), claimID)
	if err != nil {
		return &errs.SchedulerError{Op: "mark_delivered", Err: err}
	}
	return nil
}

// ReleaseClaim unclaims on explicit cancel; also a no-op on claimId
// mismatch.
func (s *Scheduler) ReleaseClaim(ctx context.Context, id idtime.EventID, claimID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE proactive_events SET claim_id = '', claim_until_ms = 0
		WHERE event_id = ? AND claim_id = ?
	`, int64(id), claimID)
	if err != nil {
		return &errs.SchedulerError{Op: "release_claim", Err: err}
	}
	return nil
}

// GetPendingEvents lists undelivered events due within horizonMs of now,
// used by scenario S4's assertion and by diagnostics.
func (s *Scheduler) GetPendingEvents(ctx context.Context, horizonMs int64) ([]store.ProactiveEvent, error) {
	now := s.now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, kind, subject, chat_id, trigger_at_ms, recurrence, delivered,
		       created_at_ms, claim_id, claim_until_ms
		FROM proactive_events
		WHERE delivered = 0 AND trigger_at_ms <= ?
		ORDER BY trigger_at_ms ASC
	`, int64(now+idtime.Millis(horizonMs)))
	if err != nil {
		return nil, &errs.SchedulerError{Op: "get_pending_events", Err: err}
	}
	defer rows.Close()

	var out []store.ProactiveEvent
	for rows.Next() {
		var ev store.ProactiveEvent
		var delivered int
		if err := rows.Scan(&ev.EventID, &ev.Kind, &ev.Subject, &ev.ChatID, &ev.TriggerAtMs, &ev.Recurrence,
			&delivered, &ev.CreatedAtMs, &ev.ClaimID, &ev.ClaimUntilMs); err != nil {
			return nil, &errs.SchedulerError{Op: "scan_pending_event", Err: err}
		}
		ev.Delivered = delivered != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}
