package reliability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeBackoffDelayMs_RespectsClampAndAddsJitter(t *testing.T) {
	cfg := BackoffConfig{BaseDelayMs: 100, MaxDelayMs: 1000, JitterFraction: 0.1}
	for attempt := 0; attempt < 10; attempt++ {
		delay := ComputeBackoffDelayMs(attempt, cfg)
		require.GreaterOrEqual(t, delay, int64(0))
		require.LessOrEqual(t, delay, int64(1000)+int64(1000*0.1)+1)
	}
}

func TestComputeBackoffDelayMs_GrowsExponentially(t *testing.T) {
	cfg := BackoffConfig{BaseDelayMs: 100, MaxDelayMs: 100000, JitterFraction: 0}
	d0 := ComputeBackoffDelayMs(0, cfg)
	d3 := ComputeBackoffDelayMs(3, cfg)
	require.Greater(t, d3, d0)
}

func TestRunWithRetries_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	sleeps := 0
	policy := RetryPolicy{
		MaxAttempts: 5,
		ShouldRetry: func(err error) bool { return true },
		Sleep:       func(d time.Duration) { sleeps++ },
		Backoff:     BackoffConfig{BaseDelayMs: 1, MaxDelayMs: 10},
	}

	result, err := RunWithRetries(policy, func(attempt int) (string, error) {
		attempts++
		if attempt < 2 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 3, attempts)
	require.Equal(t, 2, sleeps)
}

func TestRunWithRetries_NonRetriableErrorPropagatesImmediately(t *testing.T) {
	attempts := 0
	policy := RetryPolicy{
		MaxAttempts: 5,
		ShouldRetry: func(err error) bool { return false },
		Sleep:       func(time.Duration) {},
	}

	_, err := RunWithRetries(policy, func(attempt int) (int, error) {
		attempts++
		return 0, errors.New("permanent")
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestRunWithRetries_FinalAttemptErrorPropagates(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 3,
		ShouldRetry: func(err error) bool { return true },
		Sleep:       func(time.Duration) {},
		Backoff:     BackoffConfig{BaseDelayMs: 1, MaxDelayMs: 10},
	}

	_, err := RunWithRetries(policy, func(attempt int) (int, error) {
		return 0, errors.New("always fails")
	})

	require.Error(t, err)
}

func TestTransientHTTPStatus(t *testing.T) {
	for _, s := range []int{408, 409, 425, 429, 500, 503, 599} {
		require.True(t, TransientHTTPStatus(s), "status %d should be transient", s)
	}
	for _, s := range []int{200, 400, 401, 404} {
		require.False(t, TransientHTTPStatus(s), "status %d should not be transient", s)
	}
}

func TestParseRetryAfterMs(t *testing.T) {
	require.Equal(t, int64(2500), ParseRetryAfterMs("2.5", 9999))
	require.Equal(t, int64(9999), ParseRetryAfterMs("", 9999))
	require.Equal(t, int64(9999), ParseRetryAfterMs("not-a-number", 9999))
}
