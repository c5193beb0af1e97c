// Package consolidation implements the Consolidation Loop (§4.G): the
// periodic, bounded-batch-per-tick pass that synthesizes group/person
// capsules, catches up on unextracted episodes, dedupes and retires
// contradicted facts, promotes lessons, and mirrors promoted lessons to a
// YAML file through a mirror.Sink. No markdown is produced.
//
// Grounded on the teacher's checkAndSummarizeSessions per-tick batch loop
// (engine/schedules.go) — bounded work per tick, per-item error isolation,
// structured counters logged at the end of the pass — generalized from one
// summarization step into six independently idempotent steps.
package consolidation

import (
	"context"

	"github.com/arjunblj/memorycore/internal/config"
	"github.com/arjunblj/memorycore/internal/extractor"
	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/llmiface"
	"github.com/arjunblj/memorycore/internal/logging"
	"github.com/arjunblj/memorycore/internal/memory"
	"github.com/arjunblj/memorycore/internal/mirror"
)

const (
	groupCapsuleWindowMs = 7 * 24 * 60 * 60 * 1000
	publicStyleWindowMs  = 14 * 24 * 60 * 60 * 1000
	capsuleStaleAfterMs  = 7 * 24 * 60 * 60 * 1000
	pruneWindowMs        = 14 * 24 * 60 * 60 * 1000
	lessonPatternWindow  = 24 * 60 * 60 * 1000
	patternMinOccurrence = 3
)

// Summary reports what one RunOnce pass did, for logging and tests.
type Summary struct {
	GroupCapsulesSynthesized  int
	PublicStylesSynthesized  int
	EpisodesCaughtUp         int
	PersonCapsulesRefreshed  int
	LessonsPromoted          int
	PatternsDetected         int
}

// Consolidator is the Consolidation Loop's per-tick logic, independent of
// the ticker skeleton that drives it (see loop.go).
type Consolidator struct {
	store     *memory.Store
	extractor *extractor.Extractor
	llm       llmiface.LLMBackend
	mirror    mirror.Sink
	cfg       config.MemoryConfig
	clock     idtime.Clock
}

// Option configures a Consolidator at construction.
type Option func(*Consolidator)

// WithClock overrides the default system clock, for deterministic tests.
func WithClock(c idtime.Clock) Option {
	return func(co *Consolidator) { co.clock = c }
}

// WithMirror attaches a mirror sink (§4.G step 6). Absent, step 6
// is skipped entirely.
func WithMirror(m mirror.Sink) Option {
	return func(co *Consolidator) { co.mirror = m }
}

func New(st *memory.Store, ex *extractor.Extractor, llm llmiface.LLMBackend, cfg config.MemoryConfig, opts ...Option) *Consolidator {
	co := &Consolidator{store: st, extractor: ex, llm: llm, cfg: cfg, clock: idtime.SystemClock}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

func (co *Consolidator) now() idtime.Millis { return co.clock() }

func (co *Consolidator) modelRole() llmiface.Role {
	if co.cfg.ConsolidationModelRole == "" {
		return llmiface.RoleFast
	}
	return llmiface.Role(co.cfg.ConsolidationModelRole)
}

// RunOnce runs all six steps in sequence. Each step is independently
// idempotent and catches its own errors (§4.G: "a crash during step 3
// leaves steps 1-2 complete and does not re-trigger them") — a failure in
// one step is logged and does not prevent later steps from running.
func (co *Consolidator) RunOnce(ctx context.Context) Summary {
	var sum Summary

	sum.GroupCapsulesSynthesized = co.synthesizeGroupCapsules(ctx)
	sum.PublicStylesSynthesized = co.synthesizePublicStyles(ctx)
	sum.EpisodesCaughtUp = co.catchUpExtraction(ctx)
	sum.PersonCapsulesRefreshed = co.refreshPersonCapsules(ctx)
	sum.LessonsPromoted, sum.PatternsDetected = co.promoteLessonsAndDetectPatterns(ctx)
	co.mirrorLessons(ctx)

	logging.Log.Infof("[consolidation] tick complete | groups=%d styles=%d caughtUp=%d capsules=%d promoted=%d patterns=%d",
		sum.GroupCapsulesSynthesized, sum.PublicStylesSynthesized, sum.EpisodesCaughtUp,
		sum.PersonCapsulesRefreshed, sum.LessonsPromoted, sum.PatternsDetected)
	return sum
}

func (co *Consolidator) complete(ctx context.Context, text string) (string, bool) {
	res, err := co.llm.Complete(ctx, llmiface.CompletionRequest{
		Role:     co.modelRole(),
		Messages: []llmiface.Message{{Role: "user", Content: text}},
		MaxSteps: 1,
	})
	if err != nil {
		logging.Log.Warnf("[consolidation] synthesis call failed: %v", err)
		return "", false
	}
	return res.Text, true
}
