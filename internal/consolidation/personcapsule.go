package consolidation

import (
	"context"
	"strings"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/logging"
	"github.com/arjunblj/memorycore/internal/store"
)

// refreshPersonCapsules implements §4.G step 4: prune stale concerns/
// goals, dedupe and retire contradicted facts, then synthesize and write
// a compact capsule.
func (co *Consolidator) refreshPersonCapsules(ctx context.Context) int {
	limit := co.cfg.ConsolidationDirtyPersonLimit
	if limit <= 0 {
		limit = 10
	}
	stale := co.now() - idtime.Millis(capsuleStaleAfterMs)
	people, err := co.store.ListPeopleWithStaleCapsules(ctx, stale, limit)
	if err != nil {
		logging.Log.Errorf("[consolidation] list stale capsules failed: %v", err)
		return 0
	}

	done := 0
	for _, p := range people {
		if co.refreshOnePersonCapsule(ctx, p) {
			done++
		}
	}
	return done
}

func (co *Consolidator) refreshOnePersonCapsule(ctx context.Context, p store.Person) bool {
	co.pruneStaleConcerns(ctx, p)
	co.dedupeAndRetireContradictions(ctx, p.PersonID)

	reloaded, err := co.store.GetPerson(ctx, p.PersonID)
	if err != nil {
		logging.Log.Warnf("[consolidation] reload person %s after prune failed: %v", p.PersonID, err)
		return false
	}
	if reloaded == nil {
		return false
	}
	p = *reloaded

	facts, err := co.store.ListCurrentFactsForPerson(ctx, p.PersonID)
	if err != nil {
		logging.Log.Warnf("[consolidation] list current facts for %s failed: %v", p.PersonID, err)
		return false
	}

	var b strings.Builder
	b.WriteString("Synthesize a compact capsule (a few sentences) describing this person from their current facts and side-data.\n\n")
	b.WriteString("Concerns: " + strings.Join(p.CurrentConcerns, ", ") + "\n")
	b.WriteString("Goals: " + strings.Join(p.Goals, ", ") + "\n")
	b.WriteString("Facts:\n")
	for _, f := range facts {
		b.WriteString("- " + f.Content + "\n")
	}

	capsule, ok := co.complete(ctx, b.String())
	if !ok {
		return false
	}

	if err := co.store.SetPersonCapsule(ctx, p.PersonID, strings.TrimSpace(capsule), co.now()); err != nil {
		logging.Log.Warnf("[consolidation] set person capsule %s failed: %v", p.PersonID, err)
		return false
	}
	return true
}

// pruneStaleConcerns drops concerns/goals not mentioned in the last 14
// days of DM episodes, via a word-token overlap test (§4.G step 4).
func (co *Consolidator) pruneStaleConcerns(ctx context.Context, p store.Person) {
	since := co.now() - idtime.Millis(pruneWindowMs)
	episodes, err := co.store.ListEpisodesForPersonSince(ctx, p.PersonID, since)
	if err != nil {
		logging.Log.Warnf("[consolidation] list DM episodes for prune %s failed: %v", p.PersonID, err)
		return
	}

	recentTokens := make(map[string]bool)
	for _, e := range episodes {
		if e.IsGroup {
			continue
		}
		for t := range tokenize(e.Content) {
			recentTokens[t] = true
		}
	}
	if len(recentTokens) == 0 {
		return
	}

	var keepConcerns, keepGoals []string
	for _, c := range p.CurrentConcerns {
		if mentionedIn(c, recentTokens) {
			keepConcerns = append(keepConcerns, c)
		}
	}
	for _, g := range p.Goals {
		if mentionedIn(g, recentTokens) {
			keepGoals = append(keepGoals, g)
		}
	}
	if len(keepConcerns) == len(p.CurrentConcerns) && len(keepGoals) == len(p.Goals) {
		return // nothing pruned
	}

	// UpdatePersonSideData merges-with-cap, which only ever grows arrays;
	// pruning needs an overwrite, so replace the side-data directly.
	p.CurrentConcerns = keepConcerns
	p.Goals = keepGoals
	if _, err := co.store.TrackPerson(ctx, p); err != nil {
		logging.Log.Warnf("[consolidation] prune concerns/goals for %s failed: %v", p.PersonID, err)
	}
}

// dedupeAndRetireContradictions implements the rest of §4.G step 4: within
// each category, dedupe on ≥85% token-Jaccard; for contradiction keys
// (works_at, lives_in), keep only the newest value.
func (co *Consolidator) dedupeAndRetireContradictions(ctx context.Context, personID idtime.PersonID) {
	facts, err := co.store.ListCurrentFactsForPerson(ctx, personID)
	if err != nil {
		logging.Log.Warnf("[consolidation] list facts for dedupe %s failed: %v", personID, err)
		return
	}

	byCategory := make(map[store.FactCategory][]store.Fact)
	for _, f := range facts {
		byCategory[f.Category] = append(byCategory[f.Category], f)
	}

	for _, group := range byCategory {
		co.dedupeWithinCategory(ctx, group)
	}

	byContradictionKey := make(map[string][]store.Fact)
	for _, f := range facts {
		if key := contradictionKey(f.Content); key != "" {
			byContradictionKey[key] = append(byContradictionKey[key], f)
		}
	}
	for _, group := range byContradictionKey {
		co.retireAllButNewest(ctx, group)
	}
}

func (co *Consolidator) dedupeWithinCategory(ctx context.Context, facts []store.Fact) {
	retired := make(map[idtime.FactID]bool)
	for i := 0; i < len(facts); i++ {
		if retired[facts[i].FactID] {
			continue
		}
		ti := tokenize(facts[i].Content)
		for j := i + 1; j < len(facts); j++ {
			if retired[facts[j].FactID] {
				continue
			}
			if jaccardSimilarity(ti, tokenize(facts[j].Content)) >= dedupeJaccardThreshold {
				older := facts[i]
				if facts[j].CreatedAtMs < older.CreatedAtMs {
					older = facts[j]
				}
				if err := co.store.SetFactCurrent(ctx, older.FactID, false); err != nil {
					logging.Log.Warnf("[consolidation] retire duplicate fact %d failed: %v", older.FactID, err)
					continue
				}
				retired[older.FactID] = true
			}
		}
	}
}

func (co *Consolidator) retireAllButNewest(ctx context.Context, facts []store.Fact) {
	if len(facts) < 2 {
		return
	}
	newest := facts[0]
	for _, f := range facts[1:] {
		// On a CreatedAtMs tie the later-inserted (higher id) fact is newer.
		if f.CreatedAtMs > newest.CreatedAtMs ||
			(f.CreatedAtMs == newest.CreatedAtMs && f.FactID > newest.FactID) {
			newest = f
		}
	}
	for _, f := range facts {
		if f.FactID == newest.FactID {
			continue
		}
		if err := co.store.SetFactCurrent(ctx, f.FactID, false); err != nil {
			logging.Log.Warnf("[consolidation] retire contradicted fact %d failed: %v", f.FactID, err)
		}
	}
}
