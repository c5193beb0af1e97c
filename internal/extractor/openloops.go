package extractor

import (
	"context"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/logging"
	"github.com/arjunblj/memorycore/internal/store"
)

// openOpenLoop upserts a new open loop and, unless it's a low-weight social
// commitment mentioned fewer than twice, schedules and attaches its
// follow-up event (§4.F step 7).
func (e *Extractor) openOpenLoop(ctx context.Context, turn Turn, cand CandidateOpenLoop) bool {
	loop := store.OpenLoop{
		ChatID:           idtime.ChatID(turn.ChatID),
		Subject:          cand.Subject,
		Category:         store.OpenLoopCategory(cand.Category),
		EmotionalWeight:  store.EmotionalWeight(cand.EmotionalWeight),
		AnchorDateMs:     idtime.Millis(cand.AnchorDateMs),
		EvidenceQuote:    cand.EvidenceQuote,
		FollowUpQuestion: cand.FollowUpQuestion,
	}
	id, err := e.scheduler.UpsertOpenLoop(ctx, loop)
	if err != nil {
		logging.Log.Warnf("extractor: upsert open loop %q failed: %v", cand.Subject, err)
		return false
	}

	mentionCount := 1
	if loops, err := e.scheduler.ListOpenLoopsForChat(ctx, idtime.ChatID(turn.ChatID)); err == nil {
		for _, l := range loops {
			if l.ID == id {
				mentionCount = l.MentionCount
				break
			}
		}
	}

	if loop.Category == store.LoopSocialCommitment && loop.EmotionalWeight == store.WeightLow && mentionCount < 2 {
		return true
	}

	followUpAt := e.computeFollowUpTime(loop)
	now := e.now()
	followUpAt = idtime.Millis(clampInt64(int64(followUpAt), int64(now+minFollowUpWindow), int64(now+maxFollowUpWindow)))

	eventID, err := e.scheduler.AddEvent(ctx, store.ProactiveEvent{
		Kind:        store.EventFollowUp,
		Subject:     cand.Subject,
		ChatID:      idtime.ChatID(turn.ChatID),
		TriggerAtMs: followUpAt,
		Recurrence:  store.RecurrenceOnce,
	})
	if err != nil {
		logging.Log.Warnf("extractor: schedule open-loop follow-up %q failed: %v", cand.Subject, err)
		return true
	}

	if err := e.scheduler.AttachFollowUpEventToOpenLoop(ctx, id, eventID); err != nil {
		logging.Log.Warnf("extractor: attach follow-up event to open loop %q failed: %v", cand.Subject, err)
	}
	return true
}

// computeFollowUpTime implements the per-category follow-up timing table
// in §4.F step 7, before the final [now+12h, now+90d] clamp is applied.
func (e *Extractor) computeFollowUpTime(loop store.OpenLoop) idtime.Millis {
	now := e.now()

	switch loop.Category {
	case store.LoopWaitingForOutcome:
		base := int64(3 * dayMs)
		switch loop.EmotionalWeight {
		case store.WeightMedium:
			base = int64(4.5 * dayMs)
		case store.WeightHigh:
			base = int64(6 * dayMs)
		}
		return now + idtime.Millis(base)
	case store.LoopActiveDecision:
		return now + idtime.Millis(7*dayMs+jitterMs(-2*dayMs, 2*dayMs))
	case store.LoopSocialCommitment:
		return now + idtime.Millis(10*dayMs+jitterMs(-4*dayMs, 4*dayMs))
	case store.LoopUpcomingEvent:
		if loop.AnchorDateMs > 0 {
			return loop.AnchorDateMs + idtime.Millis(dayMs+jitterMs(-hourMs, hourMs))
		}
		return now + idtime.Millis(21*dayMs+jitterMs(-7*dayMs, 7*dayMs))
	default:
		return now + idtime.Millis(21*dayMs+jitterMs(-7*dayMs, 7*dayMs))
	}
}
