package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arjunblj/memorycore/internal/config"
	"github.com/arjunblj/memorycore/internal/store"
)

func openTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	db, err := store.OpenProactive(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestAddEvent_DedupeIdempotence(t *testing.T) {
	ctx := context.Background()
	s := openTestScheduler(t)

	ev := store.ProactiveEvent{Kind: store.EventReminder, Subject: "dentist", ChatID: "chat1",
		TriggerAtMs: 1000, Recurrence: store.RecurrenceOnce}

	id1, err := s.AddEvent(ctx, ev)
	require.NoError(t, err)
	id2, err := s.AddEvent(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM proactive_events`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestClaimPendingEvents_ConcurrentWorkersClaimExactlyOnce(t *testing.T) {
	ctx := context.Background()
	s := openTestScheduler(t)

	_, err := s.AddEvent(ctx, store.ProactiveEvent{
		Kind: store.EventReminder, Subject: "call mom", ChatID: "chat1",
		TriggerAtMs: s.now(), Recurrence: store.RecurrenceOnce,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]ClaimedEvent, 2)
	for i, claimID := range []string{"A", "B"} {
		wg.Add(1)
		go func(i int, claimID string) {
			defer wg.Done()
			claimed, err := s.ClaimPendingEvents(ctx, 1000, 10, 60000, claimID)
			require.NoError(t, err)
			results[i] = claimed
		}(i, claimID)
	}
	wg.Wait()

	total := len(results[0]) + len(results[1])
	require.Equal(t, 1, total, "exactly one worker should claim the event")
}

func TestMarkDelivered_NoOpOnClaimIDMismatch(t *testing.T) {
	ctx := context.Background()
	s := openTestScheduler(t)

	id, err := s.AddEvent(ctx, store.ProactiveEvent{
		Kind: store.EventReminder, Subject: "x", ChatID: "chat1",
		TriggerAtMs: s.now(), Recurrence: store.RecurrenceOnce,
	})
	require.NoError(t, err)

	claimed, err := s.ClaimPendingEvents(ctx, 1000, 10, 60000, "A")
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, s.MarkDelivered(ctx, id, "wrong-claim"))

	var delivered int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT delivered FROM proactive_events WHERE event_id = ?`, int64(id)).Scan(&delivered))
	require.Equal(t, 0, delivered, "mismatched claimId must not mark delivered")

	require.NoError(t, s.MarkDelivered(ctx, id, "A"))
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT delivered FROM proactive_events WHERE event_id = ?`, int64(id)).Scan(&delivered))
	require.Equal(t, 1, delivered)
}

func TestEvaluateSuppression_ScopeCapShortCircuits(t *testing.T) {
	ctx := context.Background()
	s := openTestScheduler(t)

	require.NoError(t, s.LogProactiveSend(ctx, "chat1", 0))

	limits := config.ScopeLimits{MaxPerDay: 1, MaxPerWeek: 10, CooldownAfterUserMs: 0, PauseAfterIgnored: 0}
	reason, err := s.EvaluateSuppression(ctx, "chat1", false, limits)
	require.NoError(t, err)
	require.Equal(t, SuppressScopeCap, reason)
}

func TestEvaluateSuppression_NoneWhenUnderAllLimits(t *testing.T) {
	ctx := context.Background()
	s := openTestScheduler(t)

	limits := config.ScopeLimits{MaxPerDay: 10, MaxPerWeek: 50, CooldownAfterUserMs: 1000, PauseAfterIgnored: 3}
	reason, err := s.EvaluateSuppression(ctx, "chat1", false, limits)
	require.NoError(t, err)
	require.Equal(t, SuppressNone, reason)
}

func TestUpsertOpenLoop_ResolveCancelsFollowUp(t *testing.T) {
	ctx := context.Background()
	s := openTestScheduler(t)

	eventID, err := s.AddEvent(ctx, store.ProactiveEvent{
		Kind: store.EventFollowUp, Subject: "interview follow up", ChatID: "chat1",
		TriggerAtMs: s.now() + 1000, Recurrence: store.RecurrenceOnce,
	})
	require.NoError(t, err)

	loopID, err := s.UpsertOpenLoop(ctx, store.OpenLoop{
		ChatID: "chat1", Subject: "Acme interview", Category: store.LoopUpcomingEvent,
		EmotionalWeight: store.WeightMedium,
	})
	require.NoError(t, err)
	require.NoError(t, s.AttachFollowUpEventToOpenLoop(ctx, loopID, eventID))

	require.NoError(t, s.ResolveOpenLoop(ctx, "chat1", NormalizeSubjectKey("Acme interview")))

	loops, err := s.ListOpenLoopsForChat(ctx, "chat1")
	require.NoError(t, err)
	require.Empty(t, loops, "resolved loop must not appear in the open list")

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM proactive_events WHERE event_id = ?`, int64(eventID)).Scan(&count))
	require.Equal(t, 0, count, "resolving the loop must cancel its attached follow-up event")
}
