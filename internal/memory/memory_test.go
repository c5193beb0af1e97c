package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, _, err := store.OpenMemory(context.Background(), ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestTrackPerson_UpsertRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	p, err := s.TrackPerson(ctx, store.Person{ChannelUserID: "u1", Channel: "telegram", DisplayName: "Ada"})
	require.NoError(t, err)
	require.NotEmpty(t, p.PersonID)

	p.DisplayName = "Ada Lovelace"
	_, err = s.TrackPerson(ctx, p)
	require.NoError(t, err)

	got, err := s.GetPersonByChannelID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Ada Lovelace", got.DisplayName)
	require.Equal(t, p.PersonID, got.PersonID)
}

func TestUpdatePersonSideData_MergesWithCap(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	p, err := s.TrackPerson(ctx, store.Person{ChannelUserID: "u2", Channel: "telegram"})
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		err := s.UpdatePersonSideData(ctx, p.PersonID, PersonSideDataUpdate{
			Goals: []string{string(rune('a' + i))},
		})
		require.NoError(t, err)
	}

	got, err := s.getPerson(ctx, p.PersonID)
	require.NoError(t, err)
	require.Len(t, got.Goals, maxArrayEntries)
}

func TestStoreFact_CreateUpdateRetire(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.StoreFact(ctx, store.Fact{
		PersonID: "p1", Subject: "p1", Content: "likes tea",
		Category: store.FactCategoryPreference, FactType: store.FactTypePreference,
		TemporalScope: store.TemporalCurrent, EvidenceQuote: "I really like tea",
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	require.NoError(t, s.UpdateFact(ctx, id, "likes green tea"))
	require.NoError(t, s.SetFactCurrent(ctx, id, false))

	hits, err := s.HybridSearchFacts(ctx, "tea", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, "likes green tea", hits[0].Fact.Content)
}

func TestLogEpisode_MarksGroupCapsuleAndPublicStyleDirty(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.LogEpisode(ctx, store.Episode{
		ChatID: "chat1", PersonID: "p1", IsGroup: true, Content: "hello there",
	})
	require.NoError(t, err)

	claims, err := s.ClaimDirtyGroupCapsules(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	require.Equal(t, "chat1", claims[0].Key)

	styleClaims, err := s.ClaimDirtyPublicStyles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, styleClaims, 1)
	require.Equal(t, "p1", styleClaims[0].Key)
}

func TestLogEpisode_NonGroupDoesNotMarkGroupCapsuleDirty(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.LogEpisode(ctx, store.Episode{ChatID: "chat1", Content: "hi"})
	require.NoError(t, err)

	claims, err := s.ClaimDirtyGroupCapsules(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, claims)
}

// TestDirtyQueue_FreshWriteMidProcessingIsNotLost exercises testable
// property 3/4 (§8): marking a key dirty again while it is claimed must
// survive completion of that claim instead of being deleted.
func TestDirtyQueue_FreshWriteMidProcessingIsNotLost(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.MarkGroupCapsuleDirty(ctx, "chat1"))

	claims, err := s.ClaimDirtyGroupCapsules(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	claim := claims[0]

	// A fresh write arrives while the claim is still being processed.
	require.NoError(t, s.MarkGroupCapsuleDirty(ctx, "chat1"))

	// Completing the stale claim must release, not delete.
	require.NoError(t, s.CompleteDirtyGroupCapsule(ctx, claim))

	again, err := s.ClaimDirtyGroupCapsules(ctx, 10)
	require.NoError(t, err)
	require.Len(t, again, 1, "fresh write mid-processing must still be claimable")
}

func TestDirtyQueue_CompleteDeletesWhenUnchanged(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.MarkGroupCapsuleDirty(ctx, "chat1"))
	claims, err := s.ClaimDirtyGroupCapsules(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claims, 1)

	require.NoError(t, s.CompleteDirtyGroupCapsule(ctx, claims[0]))

	again, err := s.ClaimDirtyGroupCapsules(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestMarkEpisodeExtracted(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.LogEpisode(ctx, store.Episode{ChatID: "chat1", Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, s.MarkEpisodeExtracted(ctx, id, idtime.Millis(1000)))
}
