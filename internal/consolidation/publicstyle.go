package consolidation

import (
	"context"
	"strings"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/logging"
)

// synthesizePublicStyles implements §4.G step 2: claim dirty public
// styles, synthesize a cross-group-safe tone digest from the last 14 days
// of that person's episodes, and write it back.
func (co *Consolidator) synthesizePublicStyles(ctx context.Context) int {
	limit := co.cfg.ConsolidationDirtyPublicStyleLimit
	if limit <= 0 {
		limit = 10
	}
	claims, err := co.store.ClaimDirtyPublicStyles(ctx, limit)
	if err != nil {
		logging.Log.Errorf("[consolidation] claim dirty public styles failed: %v", err)
		return 0
	}

	done := 0
	for _, claim := range claims {
		personID := idtime.PersonID(claim.Key)
		if co.synthesizeOnePublicStyle(ctx, personID) {
			done++
		}
		if err := co.store.CompleteDirtyPublicStyle(ctx, claim); err != nil {
			logging.Log.Errorf("[consolidation] complete dirty public style %s failed: %v", claim.Key, err)
		}
	}
	return done
}

func (co *Consolidator) synthesizeOnePublicStyle(ctx context.Context, personID idtime.PersonID) bool {
	since := co.now() - idtime.Millis(publicStyleWindowMs)
	episodes, err := co.store.ListEpisodesForPersonSince(ctx, personID, since)
	if err != nil {
		logging.Log.Warnf("[consolidation] list episodes for public style %s failed: %v", personID, err)
		return false
	}
	if len(episodes) == 0 {
		return false
	}

	var b strings.Builder
	b.WriteString("Write a short, cross-group-safe description of this person's conversational tone ")
	b.WriteString("— nothing private, nothing that could identify specific conversations, just general style.\n\n")
	for _, e := range episodes {
		b.WriteString(e.Content)
		b.WriteString("\n")
	}

	digest, ok := co.complete(ctx, b.String())
	if !ok {
		return false
	}

	if err := co.store.SetPublicStyleCapsule(ctx, personID, strings.TrimSpace(digest)); err != nil {
		logging.Log.Warnf("[consolidation] set public style capsule %s failed: %v", personID, err)
		return false
	}
	return true
}
