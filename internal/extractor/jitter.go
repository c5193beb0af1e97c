package extractor

import "math/rand"

// jitterMs returns a uniformly random offset in [minMs, maxMs], following
// reliability.ComputeBackoffDelayMs's plain math/rand.Float64 idiom rather
// than introducing a second randomness source for the extractor.
func jitterMs(minMs, maxMs int64) int64 {
	if maxMs <= minMs {
		return minMs
	}
	return minMs + int64(rand.Float64()*float64(maxMs-minMs))
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
