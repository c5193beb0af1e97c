package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/store"
)

// GetPersonByChannelID resolves the Person owning channelUserID, the
// lookup key §4.D requires callers to use before TrackPerson.
func (s *Store) GetPersonByChannelID(ctx context.Context, channelUserID string) (*store.Person, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT person_id, display_name, channel, channel_user_id, relationship_score,
		       trust_tier_override, capsule, capsule_updated_at_ms, public_style_capsule,
		       current_concerns, goals, preferences, last_mood_signal, curiosity_questions,
		       created_at_ms, updated_at_ms
		FROM people WHERE channel_user_id = ?
	`, channelUserID)
	p, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "get_person_by_channel", Err: err}
	}
	return &p, nil
}

// TrackPerson is an upsert keyed by PersonID (not ChannelUserID) per §4.D.
// Callers resolve an existing person via GetPersonByChannelID first; if
// p.PersonID is empty a new one is minted and the row is inserted.
func (s *Store) TrackPerson(ctx context.Context, p store.Person) (store.Person, error) {
	now := s.now()
	if p.PersonID == "" {
		p.PersonID = s.newPersonID()
		p.CreatedAtMs = now
	}
	p.UpdatedAtMs = now

	concerns, _ := json.Marshal(nonNil(p.CurrentConcerns))
	goals, _ := json.Marshal(nonNil(p.Goals))
	prefs, _ := json.Marshal(nonNilMap(p.Preferences))
	curiosity, _ := json.Marshal(nonNil(p.CuriosityQuestions))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO people (person_id, display_name, channel, channel_user_id, relationship_score,
		                     trust_tier_override, capsule, capsule_updated_at_ms, public_style_capsule,
		                     current_concerns, goals, preferences, last_mood_signal, curiosity_questions,
		                     created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(person_id) DO UPDATE SET
			display_name = excluded.display_name,
			channel = excluded.channel,
			channel_user_id = excluded.channel_user_id,
			relationship_score = excluded.relationship_score,
			trust_tier_override = excluded.trust_tier_override,
			capsule = excluded.capsule,
			capsule_updated_at_ms = excluded.capsule_updated_at_ms,
			public_style_capsule = excluded.public_style_capsule,
			current_concerns = excluded.current_concerns,
			goals = excluded.goals,
			preferences = excluded.preferences,
			last_mood_signal = excluded.last_mood_signal,
			curiosity_questions = excluded.curiosity_questions,
			updated_at_ms = excluded.updated_at_ms
	`, p.PersonID, p.DisplayName, p.Channel, p.ChannelUserID, p.RelationshipScore,
		p.TrustTierOverride, p.Capsule, int64(p.CapsuleUpdatedAtMs), p.PublicStyleCapsule,
		string(concerns), string(goals), string(prefs), p.LastMoodSignal, string(curiosity),
		int64(p.CreatedAtMs), int64(p.UpdatedAtMs))
	if err != nil {
		return store.Person{}, &errs.StorageError{Kind: errs.StorageIO, Op: "track_person", Err: err}
	}
	return p, nil
}

const maxArrayEntries = 10

// UpdatePersonSideData merges-with-cap the structured side-data fields
// (§4.D): array fields dedupe and truncate to 10, preferences shallow-merge,
// lastMoodSignal overwrites when supplied.
func (s *Store) UpdatePersonSideData(ctx context.Context, personID idtime.PersonID, update PersonSideDataUpdate) error {
	current, err := s.getPerson(ctx, personID)
	if err != nil {
		return err
	}
	if current == nil {
		return &errs.StorageError{Kind: errs.StorageIO, Op: "update_person_side_data", Err: fmt.Errorf("person %s not found", personID)}
	}

	current.CurrentConcerns = mergeWithCap(current.CurrentConcerns, update.CurrentConcerns)
	current.Goals = mergeWithCap(current.Goals, update.Goals)
	current.CuriosityQuestions = mergeWithCap(current.CuriosityQuestions, update.CuriosityQuestions)
	if current.Preferences == nil {
		current.Preferences = map[string]string{}
	}
	for k, v := range update.Preferences {
		current.Preferences[k] = v
	}
	if update.LastMoodSignal != "" {
		current.LastMoodSignal = update.LastMoodSignal
	}

	_, err = s.TrackPerson(ctx, *current)
	return err
}

// PersonSideDataUpdate is the optional personUpdate payload §4.F's
// extraction pipeline produces.
type PersonSideDataUpdate struct {
	CurrentConcerns    []string
	Goals              []string
	Preferences        map[string]string
	LastMoodSignal     string
	CuriosityQuestions []string
}

// mergeWithCap appends novel entries from add to existing, deduplicating
// and truncating to maxArrayEntries — keeping the most recent entries
// (§4.D: "arrays deduplicate and are truncated to 10 entries").
func mergeWithCap(existing, add []string) []string {
	seen := map[string]bool{}
	var merged []string
	for _, v := range append(append([]string{}, existing...), add...) {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		merged = append(merged, v)
	}
	if len(merged) > maxArrayEntries {
		merged = merged[len(merged)-maxArrayEntries:]
	}
	return merged
}

func (s *Store) getPerson(ctx context.Context, personID idtime.PersonID) (*store.Person, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT person_id, display_name, channel, channel_user_id, relationship_score,
		       trust_tier_override, capsule, capsule_updated_at_ms, public_style_capsule,
		       current_concerns, goals, preferences, last_mood_signal, curiosity_questions,
		       created_at_ms, updated_at_ms
		FROM people WHERE person_id = ?
	`, personID)
	p, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (store.Person, error) {
	var p store.Person
	var concerns, goals, prefs, curiosity string
	var capsuleUpdated, created, updated int64
	err := row.Scan(&p.PersonID, &p.DisplayName, &p.Channel, &p.ChannelUserID, &p.RelationshipScore,
		&p.TrustTierOverride, &p.Capsule, &capsuleUpdated, &p.PublicStyleCapsule,
		&concerns, &goals, &prefs, &p.LastMoodSignal, &curiosity,
		&created, &updated)
	if err != nil {
		return store.Person{}, err
	}
	p.CapsuleUpdatedAtMs = idtime.Millis(capsuleUpdated)
	p.CreatedAtMs = idtime.Millis(created)
	p.UpdatedAtMs = idtime.Millis(updated)
	_ = json.Unmarshal([]byte(concerns), &p.CurrentConcerns)
	_ = json.Unmarshal([]byte(goals), &p.Goals)
	_ = json.Unmarshal([]byte(prefs), &p.Preferences)
	_ = json.Unmarshal([]byte(curiosity), &p.CuriosityQuestions)
	return p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
