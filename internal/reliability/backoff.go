// Package reliability implements the Reliability Primitives (§4.I): jittered
// exponential backoff and a single retry-policy object, replacing ad-hoc
// retry loops with one reusable control flow (§9: "Retry control-flow — use
// a single policy object ..., not ad-hoc loops").
package reliability

import (
	"math"
	"math/rand"
)

// BackoffConfig parameterizes computeBackoffDelayMs (§4.I).
type BackoffConfig struct {
	BaseDelayMs   int64
	MaxDelayMs    int64
	MinDelayMs    int64 // 0 means no floor beyond the exponential curve
	JitterFraction float64
}

// DefaultJitterFraction is applied when JitterFraction is left at its zero
// value, matching §4.I's stated default.
const DefaultJitterFraction = 0.1

// ComputeBackoffDelayMs implements
// clamp(min, base*2^attempt, max) + floor(exp*jitter*rand()), where exp is
// the clamped delay, so the result never exceeds max*(1+jitter).
func ComputeBackoffDelayMs(attempt int, cfg BackoffConfig) int64 {
	jitter := cfg.JitterFraction
	if jitter == 0 {
		jitter = DefaultJitterFraction
	}

	exp := float64(cfg.BaseDelayMs) * math.Pow(2, float64(attempt))
	delay := clamp(float64(cfg.MinDelayMs), exp, float64(cfg.MaxDelayMs))

	jitterMs := math.Floor(delay * jitter * rand.Float64())
	return int64(delay) + int64(jitterMs)
}

func clamp(min, v, max float64) float64 {
	if max > 0 && v > max {
		v = max
	}
	if v < min {
		v = min
	}
	return v
}
