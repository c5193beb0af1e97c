package extractor

import (
	"context"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/logging"
	"github.com/arjunblj/memorycore/internal/store"
)

// scheduleEvent implements §4.F step 6. It returns the kind actually added
// ("" if suppressed, out of window, or failed), for Outcome bookkeeping.
func (e *Extractor) scheduleEvent(ctx context.Context, turn Turn, cand CandidateEvent) store.EventKind {
	now := e.now()
	trigger := idtime.Millis(cand.TriggerAtMs)
	if int64(trigger-now) < minEventTriggerMs || int64(trigger-now) > maxEventHorizonMs {
		return ""
	}

	kind := store.EventKind(cand.Kind)
	if turn.IsGroup && (kind == store.EventReminder || kind == store.EventBirthday) {
		return ""
	}

	_, err := e.scheduler.AddEvent(ctx, store.ProactiveEvent{
		Kind:        kind,
		Subject:     cand.Subject,
		ChatID:      idtime.ChatID(turn.ChatID),
		TriggerAtMs: trigger,
		Recurrence:  store.Recurrence(cand.Recurrence),
	})
	if err != nil {
		logging.Log.Warnf("extractor: add event %q failed: %v", cand.Subject, err)
		return ""
	}

	if kind == store.EventAnticipated && cand.FollowUp {
		followUpAt := trigger + idtime.Millis(followUpBaseMs+jitterMs(followUpMinMs, followUpMaxMs))
		if _, err := e.scheduler.AddEvent(ctx, store.ProactiveEvent{
			Kind:        store.EventFollowUp,
			Subject:     cand.Subject,
			ChatID:      idtime.ChatID(turn.ChatID),
			TriggerAtMs: followUpAt,
			Recurrence:  store.RecurrenceOnce,
		}); err != nil {
			logging.Log.Warnf("extractor: add anticipated follow-up event %q failed: %v", cand.Subject, err)
		}
	}

	return kind
}
