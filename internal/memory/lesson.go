package memory

import (
	"context"
	"encoding/json"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/store"
)

// StoreLesson inserts a new lesson row (§4.D entity: "Lesson").
func (s *Store) StoreLesson(ctx context.Context, l store.Lesson) (idtime.LessonID, error) {
	if l.CreatedAtMs == 0 {
		l.CreatedAtMs = s.now()
	}
	refs, _ := json.Marshal(nonNilEpisodeRefs(l.EpisodeRefs))

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO lessons (category, type, content, rule, alternative, person_id, episode_refs,
		                      confidence, times_validated, times_violated, promoted, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.Category, l.Type, l.Content, l.Rule, l.Alternative, l.PersonID, string(refs),
		l.Confidence, l.TimesValidated, l.TimesViolated, boolToInt(l.Promoted), int64(l.CreatedAtMs))
	if err != nil {
		return 0, &errs.StorageError{Kind: errs.StorageIO, Op: "store_lesson", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &errs.StorageError{Kind: errs.StorageIO, Op: "store_lesson_id", Err: err}
	}
	return idtime.LessonID(id), nil
}

// PromoteLesson marks a lesson promoted (§4.D: "timesValidated >= 2 and
// timesViolated <= 1").
func (s *Store) PromoteLesson(ctx context.Context, id idtime.LessonID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE lessons SET promoted = 1 WHERE lesson_id = ?`, int64(id))
	if err != nil {
		return &errs.StorageError{Kind: errs.StorageIO, Op: "promote_lesson", Err: err}
	}
	return nil
}

// ListPromotableLessons lists unpromoted lessons meeting the promotion
// invariant, for §4.G step 5.
func (s *Store) ListPromotableLessons(ctx context.Context) ([]store.Lesson, error) {
	return s.queryLessons(ctx, `WHERE promoted = 0 AND times_validated >= 2 AND times_violated <= 1`)
}

// ListLessonsSince lists lessons created at or after sinceMs, for the
// pattern-detection scan in §4.G step 5.
func (s *Store) ListLessonsSince(ctx context.Context, sinceMs idtime.Millis) ([]store.Lesson, error) {
	return s.queryLessons(ctx, `WHERE created_at_ms >= ?`, int64(sinceMs))
}

// ListLessonsByType lists every lesson of the given type, used to check
// whether a `Pattern:` entry already exists for it.
func (s *Store) ListLessonsByType(ctx context.Context, lessonType string) ([]store.Lesson, error) {
	return s.queryLessons(ctx, `WHERE type = ?`, lessonType)
}

// ListPromotedLessons lists every promoted lesson, for the mirror write
// in §4.G step 6.
func (s *Store) ListPromotedLessons(ctx context.Context) ([]store.Lesson, error) {
	return s.queryLessons(ctx, `WHERE promoted = 1 ORDER BY created_at_ms ASC`)
}

func (s *Store) queryLessons(ctx context.Context, whereClause string, args ...any) ([]store.Lesson, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lesson_id, category, type, content, rule, alternative, person_id, episode_refs,
		       confidence, times_validated, times_violated, promoted, created_at_ms
		FROM lessons `+whereClause, args...)
	if err != nil {
		return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "list_lessons", Err: err}
	}
	defer rows.Close()

	var out []store.Lesson
	for rows.Next() {
		var l store.Lesson
		var refs string
		var promoted int
		if err := rows.Scan(&l.LessonID, &l.Category, &l.Type, &l.Content, &l.Rule, &l.Alternative, &l.PersonID,
			&refs, &l.Confidence, &l.TimesValidated, &l.TimesViolated, &promoted, &l.CreatedAtMs); err != nil {
			return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "scan_lesson", Err: err}
		}
		l.Promoted = promoted != 0
		_ = json.Unmarshal([]byte(refs), &l.EpisodeRefs)
		out = append(out, l)
	}
	return out, rows.Err()
}

func nonNilEpisodeRefs(refs []idtime.EpisodeID) []idtime.EpisodeID {
	if refs == nil {
		return []idtime.EpisodeID{}
	}
	return refs
}
