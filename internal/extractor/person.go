package extractor

import (
	"context"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/logging"
	"github.com/arjunblj/memorycore/internal/memory"
)

// applyPersonUpdate merges-with-cap the optional personUpdate payload into
// the person's structured side-data (§4.F step 8). Best-effort: a failure
// here never aborts the rest of the pipeline.
func (e *Extractor) applyPersonUpdate(ctx context.Context, turn Turn, update *CandidatePersonUpdate) {
	err := e.store.UpdatePersonSideData(ctx, idtime.PersonID(turn.PersonID), memory.PersonSideDataUpdate{
		CurrentConcerns:    update.CurrentConcerns,
		Goals:              update.Goals,
		Preferences:        update.Preferences,
		LastMoodSignal:     update.LastMoodSignal,
		CuriosityQuestions: update.CuriosityQuestions,
	})
	if err != nil {
		logging.Log.Warnf("extractor: apply person update for %s failed: %v", turn.PersonID, err)
	}
}
