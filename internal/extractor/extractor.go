package extractor

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/llmiface"
	"github.com/arjunblj/memorycore/internal/logging"
	"github.com/arjunblj/memorycore/internal/memory"
	"github.com/arjunblj/memorycore/internal/scheduler"
)

const (
	dayMs             = 24 * 60 * 60 * 1000
	hourMs            = 60 * 60 * 1000
	minEventTriggerMs = -5 * 60 * 1000
	maxEventHorizonMs = 366 * dayMs
	followUpBaseMs    = 36 * hourMs
	followUpMinMs     = int64(2 * hourMs)
	followUpMaxMs     = int64(18 * hourMs)
	minFollowUpWindow = 12 * hourMs
	maxFollowUpWindow = 90 * dayMs
)

// Extractor is the Memory Extractor (§4.F): the skip-gate → extract →
// reconcile → schedule pipeline run once per conversational turn.
//
// Grounded on `engine/schedules.go`'s multi-call pipeline shape (one call
// produces structured content, a follow-up call refines it), generalized
// here into extract → verify/reconcile.
type Extractor struct {
	store     *memory.Store
	scheduler *scheduler.Scheduler
	llm       llmiface.LLMBackend
	clock     idtime.Clock

	// reconcileGroup collapses concurrent reconcileAndWriteFacts calls for
	// the same person carrying the same candidate contents into one: such
	// overlapping calls (e.g. a turn replayed off a shared queue) would
	// otherwise run redundant hybrid searches and reconcile/verify LLM
	// calls against the same fact set. Calls with different candidates
	// run separately.
	reconcileGroup singleflight.Group
}

// Option configures an Extractor at construction.
type Option func(*Extractor)

// WithClock overrides the default system clock, for deterministic tests.
func WithClock(c idtime.Clock) Option {
	return func(e *Extractor) { e.clock = c }
}

func New(st *memory.Store, sch *scheduler.Scheduler, llm llmiface.LLMBackend, opts ...Option) *Extractor {
	e := &Extractor{store: st, scheduler: sch, llm: llm, clock: idtime.SystemClock}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) now() idtime.Millis { return e.clock() }

// Process runs the full pipeline for one turn (§4.F). It never returns an
// error for LLM-side failures — those degrade per §7 and are only logged —
// only storage-layer failures on the final mark-extracted step propagate.
func (e *Extractor) Process(ctx context.Context, turn Turn) (Outcome, error) {
	if shouldSkip(turn.UserText) {
		if err := e.store.MarkEpisodeExtracted(ctx, idtime.EpisodeID(turn.EpisodeID), e.now()); err != nil {
			return Outcome{}, err
		}
		return Outcome{Skipped: true}, nil
	}

	result := e.extract(ctx, turn)
	outcome := Outcome{}

	facts := e.filterFacts(result, turn.UserText)
	if len(facts) > 0 {
		written := e.reconcileAndWriteFacts(ctx, turn, facts)
		outcome.FactsWritten = written
	}

	for _, ev := range result.Events {
		if kind := e.scheduleEvent(ctx, turn, ev); kind != "" {
			outcome.EventsAdded = append(outcome.EventsAdded, kind)
		}
	}

	for _, res := range result.Resolutions {
		if res.Confidence >= 0.7 {
			key := scheduler.NormalizeSubjectKey(res.Subject)
			if err := e.scheduler.ResolveOpenLoop(ctx, idtime.ChatID(turn.ChatID), key); err != nil {
				logging.Log.Warnf("extractor: resolve open loop %q failed: %v", res.Subject, err)
			} else {
				outcome.LoopsResolved++
			}
		}
	}

	for _, loop := range result.OpenLoops {
		if !evidenceSupported(loop.EvidenceQuote, turn.UserText) {
			continue
		}
		if e.openOpenLoop(ctx, turn, loop) {
			outcome.LoopsOpened++
		}
	}

	if result.PersonUpdate != nil && turn.PersonID != "" {
		e.applyPersonUpdate(ctx, turn, result.PersonUpdate)
	}

	if err := e.store.MarkEpisodeExtracted(ctx, idtime.EpisodeID(turn.EpisodeID), e.now()); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// extract runs the strict-JSON extraction call (§4.F step 2). A call or
// parse failure degrades to an empty result — never propagated.
func (e *Extractor) extract(ctx context.Context, turn Turn) *ExtractionResult {
	prompt := buildExtractionPrompt(turn)
	res, err := e.llm.Complete(ctx, llmiface.CompletionRequest{
		Role:     llmiface.RoleFast,
		Messages: []llmiface.Message{{Role: "user", Content: prompt}},
		MaxSteps: 2,
		JSONMode: true,
	})
	if err != nil {
		logging.Log.Warnf("extractor: extraction call failed: %v", err)
		return &ExtractionResult{}
	}
	parsed, err := parseExtractionResult(res.Text)
	if err != nil {
		logging.Log.Warnf("extractor: extraction parse failed: %v", err)
		return &ExtractionResult{}
	}
	return parsed
}

// filterFacts applies the hard evidence-quote gate (§4.F step 2), dropping
// every candidate whose quote is not supported by userText. Confidence
// tiers (§4.F step 3) are assigned later, when a survivor is written.
func (e *Extractor) filterFacts(result *ExtractionResult, userText string) []CandidateFact {
	var out []CandidateFact
	for _, f := range result.Facts {
		if !evidenceSupported(f.EvidenceQuote, userText) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func buildExtractionPrompt(turn Turn) string {
	var b strings.Builder
	b.WriteString("Extract durable facts, events, open loops, and resolutions from this message. ")
	b.WriteString("Respond with JSON only: {facts:[], events:[], openLoops:[], resolutions:[], personUpdate:null}. ")
	b.WriteString("Every fact and open loop must include an evidenceQuote that is an exact substring of the user text.\n\n")
	fmt.Fprintf(&b, "User: %s\n", turn.UserText)
	if turn.AssistantText != "" {
		fmt.Fprintf(&b, "Assistant: %s\n", turn.AssistantText)
	}
	return b.String()
}
