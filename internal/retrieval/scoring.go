package retrieval

import (
	"math"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/store"
)

// confidenceBoost implements §4.C's +0.04/0/-0.04 multiplier for
// high/medium/low confidence facts. Episodes carry no confidence tier and
// pass "" here, which boosts nothing.
func confidenceBoost(tier store.ConfidenceTier) float64 {
	switch tier {
	case store.ConfidenceHigh:
		return 0.04
	case store.ConfidenceLow:
		return -0.04
	default:
		return 0
	}
}

// recencyMultiplier is the `1 + recencyWeight · exp(-ln2 · age / halfLife)`
// term shared by both the FTS-only and hybrid formulas.
func recencyMultiplier(cfg Config, createdAtMs, now idtime.Millis) float64 {
	if cfg.HalfLifeDays <= 0 {
		return 1
	}
	ageDays := now.Since(createdAtMs).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decay := math.Exp(-math.Ln2 * ageDays / cfg.HalfLifeDays)
	return 1 + cfg.RecencyWeight*decay
}

// ftsOnlyScore is §4.C's FTS-only formula:
// score = ftsWeight · 1/(rrfK + rank) · (1 + recencyWeight · decay) · (1 + confidenceBoost)
func ftsOnlyScore(cfg Config, rank int, createdAtMs, now idtime.Millis, tier store.ConfidenceTier) float64 {
	base := cfg.FTSWeight / float64(cfg.RRFK+rank)
	return base * recencyMultiplier(cfg, createdAtMs, now) * (1 + confidenceBoost(tier))
}

// hybridScore fuses FTS and vector ranks via reciprocal-rank fusion, then
// applies the same recency and confidence multipliers as the FTS-only path.
// rankFTS/rankVec are 0 when that modality produced no rank for this id
// (§4.C: "treating missing ranks as contributing 0").
func hybridScore(cfg Config, rankFTS, rankVec int, createdAtMs, now idtime.Millis, tier store.ConfidenceTier) float64 {
	var rrf float64
	if rankFTS > 0 {
		rrf += cfg.FTSWeight / float64(cfg.RRFK+rankFTS)
	}
	if rankVec > 0 {
		rrf += cfg.VecWeight / float64(cfg.RRFK+rankVec)
	}
	return rrf * recencyMultiplier(cfg, createdAtMs, now) * (1 + confidenceBoost(tier))
}

// fetchLimit is §4.C's "fetch up to max(limit, 5·limit, 200) rows".
func fetchLimit(limit int) int {
	l := limit
	if 5*limit > l {
		l = 5 * limit
	}
	if 200 > l {
		l = 200
	}
	return l
}
