package consolidation

import (
	"context"
	"strings"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/logging"
)

// synthesizeGroupCapsules implements §4.G step 1: claim dirty group
// capsules, synthesize a short digest from the last 7 days of episodes,
// write it back, and complete the claim.
func (co *Consolidator) synthesizeGroupCapsules(ctx context.Context) int {
	limit := co.cfg.ConsolidationDirtyGroupLimit
	if limit <= 0 {
		limit = 10
	}
	claims, err := co.store.ClaimDirtyGroupCapsules(ctx, limit)
	if err != nil {
		logging.Log.Errorf("[consolidation] claim dirty group capsules failed: %v", err)
		return 0
	}

	done := 0
	for _, claim := range claims {
		chatID := idtime.ChatID(claim.Key)
		if co.synthesizeOneGroupCapsule(ctx, chatID) {
			done++
		}
		if err := co.store.CompleteDirtyGroupCapsule(ctx, claim); err != nil {
			logging.Log.Errorf("[consolidation] complete dirty group capsule %s failed: %v", claim.Key, err)
		}
	}
	return done
}

func (co *Consolidator) synthesizeOneGroupCapsule(ctx context.Context, chatID idtime.ChatID) bool {
	since := co.now() - idtime.Millis(groupCapsuleWindowMs)
	episodes, err := co.store.ListEpisodesForChatSince(ctx, chatID, since)
	if err != nil {
		logging.Log.Warnf("[consolidation] list episodes for group capsule %s failed: %v", chatID, err)
		return false
	}
	if len(episodes) == 0 {
		return false
	}

	var b strings.Builder
	b.WriteString("Write a 2-5 sentence plain-text digest of this group conversation's recent themes. No headers, no bullets.\n\n")
	for _, e := range episodes {
		b.WriteString(e.Content)
		b.WriteString("\n")
	}

	digest, ok := co.complete(ctx, b.String())
	if !ok {
		return false
	}

	if err := co.store.UpsertGroupCapsule(ctx, chatID, strings.TrimSpace(digest), co.now()); err != nil {
		logging.Log.Warnf("[consolidation] upsert group capsule %s failed: %v", chatID, err)
		return false
	}
	return true
}
