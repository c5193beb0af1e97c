package consolidation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arjunblj/memorycore/internal/config"
	"github.com/arjunblj/memorycore/internal/extractor"
	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/llmiface"
	"github.com/arjunblj/memorycore/internal/memory"
	"github.com/arjunblj/memorycore/internal/scheduler"
	"github.com/arjunblj/memorycore/internal/store"
)

func openTestConsolidator(t *testing.T, backend llmiface.LLMBackend) (*Consolidator, *memory.Store, idtime.PersonID) {
	t.Helper()
	ctx := context.Background()

	memDB, _, err := store.OpenMemory(ctx, ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { memDB.Close() })
	st := memory.New(memDB)

	proactiveDB, err := store.OpenProactive(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { proactiveDB.Close() })
	sch := scheduler.New(proactiveDB)

	p, err := st.TrackPerson(ctx, store.Person{ChannelUserID: "u1", Channel: "telegram", DisplayName: "Ada"})
	require.NoError(t, err)

	ex := extractor.New(st, sch, backend)
	cfg := config.MemoryConfig{
		ConsolidationDirtyGroupLimit:       10,
		ConsolidationDirtyPublicStyleLimit: 10,
		ConsolidationDirtyPersonLimit:      10,
		ConsolidationMaxEpisodesPerRun:     50,
	}
	co := New(st, ex, backend, cfg)
	return co, st, p.PersonID
}

func constBackend(text string) llmiface.BackendFunc {
	return func(ctx context.Context, req llmiface.CompletionRequest) (llmiface.CompletionResult, error) {
		return llmiface.CompletionResult{Text: text}, nil
	}
}

func TestSynthesizeGroupCapsules_WritesDigestAndClearsDirtyFlag(t *testing.T) {
	co, st, personID := openTestConsolidator(t, constBackend("group digest text"))
	ctx := context.Background()

	_, err := st.LogEpisode(ctx, store.Episode{ChatID: "group1", PersonID: personID, IsGroup: true, Content: "USER: hi\nFRIEND: hello"})
	require.NoError(t, err)

	done := co.synthesizeGroupCapsules(ctx)
	require.Equal(t, 1, done)

	capsule, err := st.GetGroupCapsule(ctx, "group1")
	require.NoError(t, err)
	require.NotNil(t, capsule)
	require.Equal(t, "group digest text", capsule.Capsule)

	// A second pass with nothing newly dirtied claims nothing.
	require.Equal(t, 0, co.synthesizeGroupCapsules(ctx))
}

func TestCatchUpExtraction_ParsesEpisodeAndMarksExtracted(t *testing.T) {
	resp := `{"facts":[{"subject":"user","content":"works at Anthropic","category":"professional","factType":"factual","temporalScope":"current","evidenceQuote":"I work at Anthropic"}]}`
	co, st, personID := openTestConsolidator(t, constBackend(resp))
	ctx := context.Background()

	epID, err := st.LogEpisode(ctx, store.Episode{
		ChatID: "chat1", PersonID: personID,
		Content: "USER: I work at Anthropic\nFRIEND: nice!",
	})
	require.NoError(t, err)

	done := co.catchUpExtraction(ctx)
	require.Equal(t, 1, done)

	hits, err := st.HybridSearchFacts(ctx, "Anthropic", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	unextracted, err := st.ListUnextractedEpisodes(ctx, 10)
	require.NoError(t, err)
	for _, e := range unextracted {
		require.NotEqual(t, epID, e.EpisodeID)
	}
}

func TestCatchUpExtraction_UnparseableContentMarksExtractedWithoutExtracting(t *testing.T) {
	calls := 0
	backend := llmiface.BackendFunc(func(ctx context.Context, req llmiface.CompletionRequest) (llmiface.CompletionResult, error) {
		calls++
		return llmiface.CompletionResult{Text: "{}"}, nil
	})
	co, st, personID := openTestConsolidator(t, backend)
	ctx := context.Background()

	_, err := st.LogEpisode(ctx, store.Episode{ChatID: "chat1", PersonID: personID, Content: "not in the USER/FRIEND shape"})
	require.NoError(t, err)

	done := co.catchUpExtraction(ctx)
	require.Equal(t, 0, done)
	require.Equal(t, 0, calls)

	unextracted, err := st.ListUnextractedEpisodes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unextracted, 0)
}

func TestPruneStaleConcerns_DropsConcernNotMentionedRecently(t *testing.T) {
	co, st, personID := openTestConsolidator(t, constBackend("capsule text"))
	ctx := context.Background()

	p, err := st.GetPerson(ctx, personID)
	require.NoError(t, err)
	p.CurrentConcerns = []string{"worried about rent", "stressed about exams"}
	_, err = st.TrackPerson(ctx, *p)
	require.NoError(t, err)

	_, err = st.LogEpisode(ctx, store.Episode{ChatID: "dm1", PersonID: personID, Content: "exams are coming up soon"})
	require.NoError(t, err)

	p2, err := st.GetPerson(ctx, personID)
	require.NoError(t, err)
	co.pruneStaleConcerns(ctx, *p2)

	p3, err := st.GetPerson(ctx, personID)
	require.NoError(t, err)
	require.Contains(t, p3.CurrentConcerns, "stressed about exams")
	require.NotContains(t, p3.CurrentConcerns, "worried about rent")
}

func TestDedupeWithinCategory_RetiresOlderDuplicate(t *testing.T) {
	co, st, personID := openTestConsolidator(t, constBackend("x"))
	ctx := context.Background()

	older, err := st.StoreFact(ctx, store.Fact{
		PersonID: personID, Subject: "user", Content: "works at Jane Street as an engineer",
		Category: store.FactCategoryProfessional, FactType: store.FactTypeFactual,
		TemporalScope: store.TemporalCurrent, IsCurrent: true,
	})
	require.NoError(t, err)
	newer, err := st.StoreFact(ctx, store.Fact{
		PersonID: personID, Subject: "user", Content: "works at Jane Street as an engineer now",
		Category: store.FactCategoryProfessional, FactType: store.FactTypeFactual,
		TemporalScope: store.TemporalCurrent, IsCurrent: true,
	})
	require.NoError(t, err)

	co.dedupeAndRetireContradictions(ctx, personID)

	facts, err := st.ListCurrentFactsForPerson(ctx, personID)
	require.NoError(t, err)
	var ids []idtime.FactID
	for _, f := range facts {
		ids = append(ids, f.FactID)
	}
	require.NotContains(t, ids, older)
	require.Contains(t, ids, newer)
}

func TestRetireAllButNewest_KeepsNewestWorksAtFact(t *testing.T) {
	co, st, personID := openTestConsolidator(t, constBackend("x"))
	ctx := context.Background()

	_, err := st.StoreFact(ctx, store.Fact{
		PersonID: personID, Subject: "user", Content: "works at Acme Corp",
		Category: store.FactCategoryProfessional, FactType: store.FactTypeFactual,
		TemporalScope: store.TemporalCurrent, IsCurrent: true, CreatedAtMs: 1000,
	})
	require.NoError(t, err)
	newest, err := st.StoreFact(ctx, store.Fact{
		PersonID: personID, Subject: "user", Content: "works at Globex now",
		Category: store.FactCategoryProfessional, FactType: store.FactTypeFactual,
		TemporalScope: store.TemporalCurrent, IsCurrent: true, CreatedAtMs: 2000,
	})
	require.NoError(t, err)

	co.dedupeAndRetireContradictions(ctx, personID)

	facts, err := st.ListCurrentFactsForPerson(ctx, personID)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	require.Equal(t, newest, facts[0].FactID)
}

func TestPromoteLessonsAndDetectPatterns_PromotesAndDetectsPattern(t *testing.T) {
	co, st, personID := openTestConsolidator(t, constBackend("x"))
	ctx := context.Background()

	_, err := st.StoreLesson(ctx, store.Lesson{
		Category: "style", Type: "too_formal", Content: "user prefers casual tone",
		PersonID: personID, TimesValidated: 2, TimesViolated: 0,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := st.StoreLesson(ctx, store.Lesson{
			Category: "style", Type: "too_long", Content: "response was too long", PersonID: personID,
		})
		require.NoError(t, err)
	}

	promoted, patterns := co.promoteLessonsAndDetectPatterns(ctx)
	require.Equal(t, 1, promoted)
	require.Equal(t, 1, patterns)

	byType, err := st.ListLessonsByType(ctx, "too_long")
	require.NoError(t, err)
	foundPattern := false
	for _, l := range byType {
		if l.Category == "pattern" {
			foundPattern = true
		}
	}
	require.True(t, foundPattern)

	// Running again should not duplicate the pattern lesson.
	_, patterns2 := co.promoteLessonsAndDetectPatterns(ctx)
	require.Equal(t, 0, patterns2)
}

func TestRunOnce_IsIdempotentAcrossSteps(t *testing.T) {
	co, st, personID := openTestConsolidator(t, constBackend("digest"))
	ctx := context.Background()

	_, err := st.LogEpisode(ctx, store.Episode{ChatID: "group1", PersonID: personID, IsGroup: true, Content: "USER: hi\nFRIEND: hi"})
	require.NoError(t, err)

	sum1 := co.RunOnce(ctx)
	require.Equal(t, 1, sum1.GroupCapsulesSynthesized)

	sum2 := co.RunOnce(ctx)
	require.Equal(t, 0, sum2.GroupCapsulesSynthesized)
}
