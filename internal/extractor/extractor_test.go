package extractor

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/llmiface"
	"github.com/arjunblj/memorycore/internal/memory"
	"github.com/arjunblj/memorycore/internal/scheduler"
	"github.com/arjunblj/memorycore/internal/store"
)

func openTestExtractor(t *testing.T, backend llmiface.LLMBackend) (*Extractor, *memory.Store, *scheduler.Scheduler, idtime.PersonID) {
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

	ex := New(st, sch, backend)
	return ex, st, sch, p.PersonID
}

func jsonBackend(text string) llmiface.BackendFunc {
	return func(ctx context.Context, req llmiface.CompletionRequest) (llmiface.CompletionResult, error) {
		return llmiface.CompletionResult{Text: text}, nil
	}
}

func TestProcess_SkipGate_ShortGreetingMarksExtractedWithoutLLMCall(t *testing.T) {
	calls := 0
	backend := llmiface.BackendFunc(func(ctx context.Context, req llmiface.CompletionRequest) (llmiface.CompletionResult, error) {
		calls++
		return llmiface.CompletionResult{Text: "{}"}, nil
	})
	ex, st, _, personID := openTestExtractor(t, backend)
	ctx := context.Background()

	epID, err := st.LogEpisode(ctx, store.Episode{ChatID: "chat1", PersonID: personID, Content: "hey"})
	require.NoError(t, err)

	outcome, err := ex.Process(ctx, Turn{ChatID: "chat1", PersonID: string(personID), EpisodeID: int64(epID), UserText: "hey"})
	require.NoError(t, err)
	require.True(t, outcome.Skipped)
	require.Equal(t, 0, calls, "skip-gated turns must never reach the LLM")
}

// TestProcess_SkipGate_ShortTextWithDigitReachesLLM covers the cheap-skip
// exception: text under 8 chars that still carries a digit or @-mention
// must not be skip-gated, since hasPositiveSignal already treats those as
// positive signal.
func TestProcess_SkipGate_ShortTextWithDigitReachesLLM(t *testing.T) {
	calls := 0
	backend := llmiface.BackendFunc(func(ctx context.Context, req llmiface.CompletionRequest) (llmiface.CompletionResult, error) {
		calls++
		return llmiface.CompletionResult{Text: "{}"}, nil
	})
	ex, st, _, personID := openTestExtractor(t, backend)
	ctx := context.Background()

	epID, err := st.LogEpisode(ctx, store.Episode{ChatID: "chat1", PersonID: personID, Content: "2pm"})
	require.NoError(t, err)

	outcome, err := ex.Process(ctx, Turn{ChatID: "chat1", PersonID: string(personID), EpisodeID: int64(epID), UserText: "2pm"})
	require.NoError(t, err)
	require.False(t, outcome.Skipped, "short text with a digit must fall through to extraction")
	require.Equal(t, 1, calls, "extraction call must fire for short text carrying positive signal")
}

// TestProcess_StoresFactWithEvidenceQuote is scenario S2: a high-signal turn
// with a supported evidence quote produces a stored fact.
func TestProcess_StoresFactWithEvidenceQuote(t *testing.T) {
	resp := `{"facts":[{"subject":"user","content":"works at Jane Street","category":"professional","factType":"factual","temporalScope":"current","evidenceQuote":"I work at Jane Street"}]}`
	ex, st, _, personID := openTestExtractor(t, jsonBackend(resp))
	ctx := context.Background()

	epID, err := st.LogEpisode(ctx, store.Episode{ChatID: "chat1", PersonID: personID, Content: "I work at Jane Street"})
	require.NoError(t, err)

	outcome, err := ex.Process(ctx, Turn{ChatID: "chat1", PersonID: string(personID), EpisodeID: int64(epID), UserText: "I work at Jane Street"})
	require.NoError(t, err)
	require.Equal(t, 1, outcome.FactsWritten)

	hits, err := st.HybridSearchFacts(ctx, "Jane Street", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, store.ConfidenceHigh, hits[0].Fact.ConfidenceTier)
}

// TestProcess_DropsFactWithUnsupportedEvidenceQuote exercises the hard
// evidence-quote gate (§4.F step 2).
func TestProcess_DropsFactWithUnsupportedEvidenceQuote(t *testing.T) {
	resp := `{"facts":[{"subject":"user","content":"owns a boat","category":"misc","factType":"factual","temporalScope":"current","evidenceQuote":"this text is not in the user message"}]}`
	ex, st, _, personID := openTestExtractor(t, jsonBackend(resp))
	ctx := context.Background()

	epID, err := st.LogEpisode(ctx, store.Episode{ChatID: "chat1", PersonID: personID, Content: "I just bought a boat today"})
	require.NoError(t, err)

	outcome, err := ex.Process(ctx, Turn{ChatID: "chat1", PersonID: string(personID), EpisodeID: int64(epID), UserText: "I just bought a boat today"})
	require.NoError(t, err)
	require.Equal(t, 0, outcome.FactsWritten)
}

func TestProcess_MalformedExtractionJSONDegradesGracefully(t *testing.T) {
	ex, st, _, personID := openTestExtractor(t, jsonBackend("not json at all"))
	ctx := context.Background()

	epID, err := st.LogEpisode(ctx, store.Episode{ChatID: "chat1", PersonID: personID, Content: "I work at Jane Street on Mondays"})
	require.NoError(t, err)

	outcome, err := ex.Process(ctx, Turn{ChatID: "chat1", PersonID: string(personID), EpisodeID: int64(epID), UserText: "I work at Jane Street on Mondays"})
	require.NoError(t, err)
	require.Equal(t, 0, outcome.FactsWritten)
}

func TestProcess_EventWithinWindowIsScheduled(t *testing.T) {
	now := idtime.Millis(1_000_000)
	trigger := int64(now) + 60_000
	resp := `{"events":[{"kind":"reminder","subject":"dentist","triggerAtMs":` + strconv.FormatInt(trigger, 10) + `,"recurrence":"once"}]}`
	ex, st, sch, personID := openTestExtractor(t, jsonBackend(resp))
	ex.clock = func() idtime.Millis { return now }
	ctx := context.Background()

	epID, err := st.LogEpisode(ctx, store.Episode{ChatID: "chat1", PersonID: personID, Content: "remind me about the dentist tomorrow at 3pm"})
	require.NoError(t, err)

	outcome, err := ex.Process(ctx, Turn{ChatID: "chat1", PersonID: string(personID), EpisodeID: int64(epID), UserText: "remind me about the dentist tomorrow at 3pm"})
	require.NoError(t, err)
	require.Contains(t, outcome.EventsAdded, store.EventReminder)

	pending, err := sch.GetPendingEvents(ctx, 24*60*60*1000)
	_ = pending
	require.NoError(t, err)
}

// TestProcess_SuppressesReminderInGroupChat exercises §4.F step 6's group
// suppression rule.
func TestProcess_SuppressesReminderInGroupChat(t *testing.T) {
	now := idtime.Millis(1_000_000)
	trigger := int64(now) + 60_000
	resp := `{"events":[{"kind":"reminder","subject":"dentist","triggerAtMs":` + strconv.FormatInt(trigger, 10) + `,"recurrence":"once"}]}`
	ex, st, _, personID := openTestExtractor(t, jsonBackend(resp))
	ex.clock = func() idtime.Millis { return now }
	ctx := context.Background()

	epID, err := st.LogEpisode(ctx, store.Episode{ChatID: "group:chat1", PersonID: personID, IsGroup: true, Content: "remind us about the dentist tomorrow at 3pm"})
	require.NoError(t, err)

	outcome, err := ex.Process(ctx, Turn{ChatID: "group:chat1", PersonID: string(personID), IsGroup: true, EpisodeID: int64(epID), UserText: "remind us about the dentist tomorrow at 3pm"})
	require.NoError(t, err)
	require.Empty(t, outcome.EventsAdded)
}

