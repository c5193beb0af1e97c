package consolidation

import (
	"context"
	"strconv"
	"strings"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/logging"
	"github.com/arjunblj/memorycore/internal/store"
)

const patternLessonPrefix = "Pattern: "

// promoteLessonsAndDetectPatterns implements §4.G step 5: promote any
// lesson meeting the validation invariant, then scan lessons created in
// the last 24h grouped by type, logging a new observational lesson when
// a type recurs often enough to be a pattern worth surfacing.
func (co *Consolidator) promoteLessonsAndDetectPatterns(ctx context.Context) (promoted int, patterns int) {
	promotable, err := co.store.ListPromotableLessons(ctx)
	if err != nil {
		logging.Log.Errorf("[consolidation] list promotable lessons failed: %v", err)
	} else {
		for _, l := range promotable {
			if err := co.store.PromoteLesson(ctx, l.LessonID); err != nil {
				logging.Log.Warnf("[consolidation] promote lesson %d failed: %v", l.LessonID, err)
				continue
			}
			promoted++
		}
	}

	patterns = co.detectPatterns(ctx)
	return promoted, patterns
}

func (co *Consolidator) detectPatterns(ctx context.Context) int {
	since := co.now() - idtime.Millis(lessonPatternWindow)
	recent, err := co.store.ListLessonsSince(ctx, since)
	if err != nil {
		logging.Log.Errorf("[consolidation] list recent lessons failed: %v", err)
		return 0
	}

	byType := make(map[string]int)
	for _, l := range recent {
		if strings.HasPrefix(l.Content, patternLessonPrefix) {
			continue
		}
		byType[l.Type]++
	}

	detected := 0
	for lessonType, count := range byType {
		if count < patternMinOccurrence {
			continue
		}
		if co.patternAlreadyLogged(ctx, lessonType) {
			continue
		}
		if co.logPattern(ctx, lessonType, count) {
			detected++
		}
	}
	return detected
}

func (co *Consolidator) patternAlreadyLogged(ctx context.Context, lessonType string) bool {
	existing, err := co.store.ListLessonsByType(ctx, lessonType)
	if err != nil {
		logging.Log.Warnf("[consolidation] list lessons by type %s failed: %v", lessonType, err)
		return true
	}
	for _, l := range existing {
		if strings.HasPrefix(l.Content, patternLessonPrefix) {
			return true
		}
	}
	return false
}

func (co *Consolidator) logPattern(ctx context.Context, lessonType string, count int) bool {
	lesson := store.Lesson{
		Category:    "pattern",
		Type:        lessonType,
		Content:     patternLessonPrefix + lessonType + " recurred in " + strconv.Itoa(count) + " lessons within 24h",
		CreatedAtMs: co.now(),
	}
	if _, err := co.store.StoreLesson(ctx, lesson); err != nil {
		logging.Log.Warnf("[consolidation] store pattern lesson for type %s failed: %v", lessonType, err)
		return false
	}
	return true
}
