package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/llmiface"
	"github.com/arjunblj/memorycore/internal/logging"
	"github.com/arjunblj/memorycore/internal/retrieval"
	"github.com/arjunblj/memorycore/internal/store"
)

const reconcileSearchLimit = 30

// reconcileAndWriteFacts implements §4.F steps 3-5: tier, search existing
// facts, verify or reconcile against them, and write survivors. Concurrent
// calls for the same person with the same candidate contents are collapsed
// onto a single in-flight run via e.reconcileGroup so a replayed turn never
// races a duplicate reconcile pass against the same fact set; calls with
// different candidates each run.
func (e *Extractor) reconcileAndWriteFacts(ctx context.Context, turn Turn, facts []CandidateFact) int {
	key := turn.PersonID + "\x00" + joinContents(facts)
	v, _, _ := e.reconcileGroup.Do(key, func() (interface{}, error) {
		return e.doReconcileAndWriteFacts(ctx, turn, facts), nil
	})
	return v.(int)
}

func (e *Extractor) doReconcileAndWriteFacts(ctx context.Context, turn Turn, facts []CandidateFact) int {
	query := joinContents(facts)
	existing, err := e.store.HybridSearchFacts(ctx, query, reconcileSearchLimit)
	if err != nil {
		logging.Log.Warnf("extractor: hybrid fact search failed, treating as no prior facts: %v", err)
		existing = nil
	}

	if len(existing) == 0 {
		return e.verifyAndInsert(ctx, turn, facts)
	}
	return e.reconcileAgainstExisting(ctx, turn, facts, existing)
}

// verifyAndInsert runs the optional verification call (§4.F step 4) when
// there are no prior facts and ≥2 candidates. On any failure or when there
// are <2 candidates, every candidate is kept (degrade-open).
func (e *Extractor) verifyAndInsert(ctx context.Context, turn Turn, facts []CandidateFact) int {
	supported := make([]bool, len(facts))
	for i := range supported {
		supported[i] = true
	}

	if len(facts) >= 2 {
		res, err := e.llm.Complete(ctx, llmiface.CompletionRequest{
			Role:     llmiface.RoleFast,
			Messages: []llmiface.Message{{Role: "user", Content: buildVerifyPrompt(facts)}},
			MaxSteps: 2,
			JSONMode: true,
		})
		if err != nil {
			logging.Log.Warnf("extractor: verify call failed, all candidates pass: %v", err)
		} else if parsed, perr := parseVerifyResult(res.Text); perr != nil {
			logging.Log.Warnf("extractor: verify parse failed, all candidates pass: %v", perr)
		} else if len(parsed.Supported) == len(facts) {
			supported = parsed.Supported
		}
	}

	written := 0
	for i, f := range facts {
		if !supported[i] {
			continue
		}
		if e.storeFact(ctx, turn, f) {
			written++
		}
	}
	return written
}

// reconcileAgainstExisting runs the reconcile call (§4.F step 5), applying
// its per-candidate verdicts with the hard add/update content guardrail. A
// JSON parse failure falls back to lowercase-dedupe insertion.
func (e *Extractor) reconcileAgainstExisting(ctx context.Context, turn Turn, facts []CandidateFact, existing []retrieval.FactHit) int {
	res, err := e.llm.Complete(ctx, llmiface.CompletionRequest{
		Role:     llmiface.RoleFast,
		Messages: []llmiface.Message{{Role: "user", Content: buildReconcilePrompt(facts, existing)}},
		MaxSteps: 2,
		JSONMode: true,
	})
	if err != nil {
		logging.Log.Warnf("extractor: reconcile call failed, falling back to dedupe insert: %v", err)
		return e.dedupeInsert(ctx, turn, facts, existing)
	}
	parsed, perr := parseReconcileResult(res.Text)
	if perr != nil {
		logging.Log.Warnf("extractor: reconcile parse failed, falling back to dedupe insert: %v", perr)
		return e.dedupeInsert(ctx, turn, facts, existing)
	}

	written := 0
	for _, action := range parsed.Actions {
		switch action.Action {
		case "add":
			if !contentFromCandidateSet(action.Content, facts) {
				logging.Log.Warnf("extractor: reconciler add content not in candidate set, dropping")
				continue
			}
			f := candidateForReconcile(facts, action.CandidateIdx, action.Content)
			if e.storeFact(ctx, turn, f) {
				written++
			}
		case "update":
			if !contentFromCandidateSet(action.Content, facts) {
				logging.Log.Warnf("extractor: reconciler update content not in candidate set, dropping")
				continue
			}
			if action.ExistingIdx < 0 || action.ExistingIdx >= len(existing) {
				continue
			}
			if err := e.store.UpdateFact(ctx, existing[action.ExistingIdx].Fact.FactID, action.Content); err != nil {
				logging.Log.Warnf("extractor: update fact failed: %v", err)
				continue
			}
			written++
		case "delete":
			if action.ExistingIdx < 0 || action.ExistingIdx >= len(existing) {
				continue
			}
			if err := e.store.SetFactCurrent(ctx, existing[action.ExistingIdx].Fact.FactID, false); err != nil {
				logging.Log.Warnf("extractor: retire fact failed: %v", err)
			}
		case "none":
			// no-op
		}
	}
	return written
}

// dedupeInsert is the reconcile-failure fallback (§4.F step 5): insert
// candidates whose lowercased content isn't already present among existing
// facts.
func (e *Extractor) dedupeInsert(ctx context.Context, turn Turn, facts []CandidateFact, existing []retrieval.FactHit) int {
	seen := make(map[string]bool, len(existing))
	for _, hit := range existing {
		seen[strings.ToLower(strings.TrimSpace(hit.Fact.Content))] = true
	}

	written := 0
	for _, f := range facts {
		key := strings.ToLower(strings.TrimSpace(f.Content))
		if seen[key] {
			continue
		}
		seen[key] = true
		if e.storeFact(ctx, turn, f) {
			written++
		}
	}
	return written
}

func (e *Extractor) storeFact(ctx context.Context, turn Turn, f CandidateFact) bool {
	tier := tierFact(f.EvidenceQuote, f.Content, turn.UserText)
	_, err := e.store.StoreFact(ctx, store.Fact{
		PersonID:       idtime.PersonID(turn.PersonID),
		Subject:        f.Subject,
		Content:        f.Content,
		Category:       store.FactCategory(f.Category),
		FactType:       store.FactType(f.FactType),
		TemporalScope:  store.TemporalScope(f.TemporalScope),
		EvidenceQuote:  f.EvidenceQuote,
		ConfidenceTier: tier,
		CreatedAtMs:    e.now(),
	})
	if err != nil {
		logging.Log.Warnf("extractor: store fact failed: %v", err)
		return false
	}
	return true
}

func contentFromCandidateSet(content string, facts []CandidateFact) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	for _, f := range facts {
		if strings.TrimSpace(f.Content) == content {
			return true
		}
	}
	return false
}

func candidateForReconcile(facts []CandidateFact, idx int, content string) CandidateFact {
	if idx >= 0 && idx < len(facts) {
		f := facts[idx]
		f.Content = content
		return f
	}
	for _, f := range facts {
		if strings.TrimSpace(f.Content) == strings.TrimSpace(content) {
			return f
		}
	}
	return CandidateFact{Content: content}
}

func joinContents(facts []CandidateFact) string {
	parts := make([]string, len(facts))
	for i, f := range facts {
		parts[i] = f.Content
	}
	return strings.Join(parts, " ")
}

func buildVerifyPrompt(facts []CandidateFact) string {
	var b strings.Builder
	b.WriteString("For each candidate fact below, determine if its evidence quote genuinely supports it. ")
	b.WriteString("Respond with JSON only: {supported: [bool, ...]} in the same order.\n\n")
	for i, f := range facts {
		fmt.Fprintf(&b, "%d. content=%q evidenceQuote=%q\n", i, f.Content, f.EvidenceQuote)
	}
	return b.String()
}

func buildReconcilePrompt(facts []CandidateFact, existing []retrieval.FactHit) string {
	var b strings.Builder
	b.WriteString("Reconcile candidate facts against existing facts. For each candidate, emit one action: ")
	b.WriteString(`"add", "update" (with existingIdx and content), "delete" (with existingIdx), or "none". `)
	b.WriteString("add/update content must be copied verbatim from a candidate below — never invent new text. ")
	b.WriteString(`Respond with JSON only: {actions: [{action, existingIdx, candidateIdx, content}, ...]}.` + "\n\n")
	b.WriteString("Existing facts:\n")
	for i, hit := range existing {
		fmt.Fprintf(&b, "%d. %s\n", i, hit.Fact.Content)
	}
	b.WriteString("\nCandidates:\n")
	for i, f := range facts {
		fmt.Fprintf(&b, "%d. %s\n", i, f.Content)
	}
	return b.String()
}
