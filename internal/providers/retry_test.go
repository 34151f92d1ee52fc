package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsAfterRetryableFailures(t *testing.T) {
	attempts := 0
	start := time.Now()

	result, err := withRetry(context.Background(), "test", func(_ context.Context, n int) (string, attemptResult, error) {
		attempts++
		if n < 3 {
			return "", attemptResult{statusCode: 500, retryable: true}, errors.New("server error")
		}
		return "ok", attemptResult{}, nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 3, attempts)
	// attempt 1->2 waits >=1s, attempt 2->3 waits >=2s.
	require.GreaterOrEqual(t, time.Since(start), 3*time.Second)
}

func TestWithRetryStopsOnFatalError(t *testing.T) {
	attempts := 0

	_, err := withRetry(context.Background(), "test", func(_ context.Context, _ int) (string, attemptResult, error) {
		attempts++
		return "", attemptResult{statusCode: 400, retryable: false}, errors.New("bad request")
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, 400, provErr.StatusCode)
}

func TestWithRetryExhaustsAfterMaxAttempts(t *testing.T) {
	attempts := 0

	_, err := withRetry(context.Background(), "test", func(_ context.Context, _ int) (string, attemptResult, error) {
		attempts++
		return "", attemptResult{statusCode: 503, retryable: true}, errors.New("unavailable")
	})

	require.Error(t, err)
	require.Equal(t, maxAttempts, attempts)
}

func TestWithRetryStopsSleepingOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	_, err := withRetry(ctx, "test", func(_ context.Context, _ int) (string, attemptResult, error) {
		attempts++
		cancel()
		return "", attemptResult{statusCode: 503, retryable: true}, errors.New("unavailable")
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
}
