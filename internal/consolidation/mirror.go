package consolidation

import (
	"context"

	"github.com/arjunblj/memorycore/internal/logging"
)

// mirrorLessons implements §4.G step 6: write every promoted lesson to the
// mirror sink, best-effort. A nil mirror (WithMirror never called) skips
// this step entirely.
func (co *Consolidator) mirrorLessons(ctx context.Context) {
	if co.mirror == nil {
		return
	}

	lessons, err := co.store.ListPromotedLessons(ctx)
	if err != nil {
		logging.Log.Errorf("[consolidation] list promoted lessons for mirror failed: %v", err)
		return
	}

	if err := co.mirror.Write(ctx, lessons); err != nil {
		logging.Log.Warnf("[consolidation] mirror write failed: %v", err)
	}
}
