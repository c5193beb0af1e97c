// Package retrieval implements §4.C: hybrid (lexical ∪ vector) search with
// reciprocal-rank fusion, recency decay, and confidence weighting, over the
// facts and episodes tables the Storage Engine maintains.
package retrieval

// Config holds the runtime-tunable retrieval parameters spec.md §4.C
// names. internal/config wires these from memory.retrieval_* and
// memory.decay_half_life_days, and its validate rejects a non-positive
// RRFK or half-life and negative weights at config-load time.
type Config struct {
	RRFK          int
	FTSWeight     float64
	VecWeight     float64
	RecencyWeight float64
	HalfLifeDays  float64
}

// DefaultConfig returns spec.md §4.C's stated defaults.
func DefaultConfig() Config {
	return Config{
		RRFK:          60,
		FTSWeight:     0.6,
		VecWeight:     0.4,
		RecencyWeight: 0.2,
		HalfLifeDays:  30,
	}
}
