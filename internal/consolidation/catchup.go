package consolidation

import (
	"context"
	"regexp"

	"github.com/arjunblj/memorycore/internal/extractor"
	"github.com/arjunblj/memorycore/internal/logging"
)

// episodeContentPattern parses the "USER: … FRIEND: …" block §4.D's
// Episode.content convention uses (logEpisode writes it, this step reads
// it back).
var episodeContentPattern = regexp.MustCompile(`(?s)^USER:\s*(.*?)\s*FRIEND:\s*(.*)$`)

// catchUpExtraction implements §4.G step 3: find episodes the extractor
// never processed (crash, restart, or a reactive turn logged without
// inline extraction) and run them through §4.F now.
func (co *Consolidator) catchUpExtraction(ctx context.Context) int {
	limit := co.cfg.ConsolidationMaxEpisodesPerRun
	if limit <= 0 {
		limit = 50
	}
	episodes, err := co.store.ListUnextractedEpisodes(ctx, limit)
	if err != nil {
		logging.Log.Errorf("[consolidation] list unextracted episodes failed: %v", err)
		return 0
	}

	done := 0
	for _, e := range episodes {
		match := episodeContentPattern.FindStringSubmatch(e.Content)
		if match == nil || e.ChatID == "" {
			if err := co.store.MarkEpisodeExtracted(ctx, e.EpisodeID, co.now()); err != nil {
				logging.Log.Warnf("[consolidation] mark unparseable episode %d extracted failed: %v", e.EpisodeID, err)
			}
			continue
		}

		turn := extractor.Turn{
			ChatID:        string(e.ChatID),
			PersonID:      string(e.PersonID),
			IsGroup:       e.IsGroup,
			EpisodeID:     int64(e.EpisodeID),
			UserText:      match[1],
			AssistantText: match[2],
		}
		if _, err := co.extractor.Process(ctx, turn); err != nil {
			logging.Log.Errorf("[consolidation] catch-up extraction for episode %d failed: %v", e.EpisodeID, err)
			continue
		}
		done++
	}
	return done
}
