package providers

import (
	"context"
	"time"

	"github.com/djun/bashclaw/internal/backoff"
)

// Three attempts total, 120s per attempt.
const (
	maxAttempts    = 3
	attemptTimeout = 120 * time.Second
)

// attemptResult is what one provider HTTP attempt reports back to the retry
// loop: enough to classify retryability without the loop knowing about any
// particular wire format.
type attemptResult struct {
	statusCode int  // 0 if the request never got an HTTP response
	retryable  bool // true for network errors and for 429/500/502/503
}

// withRetry runs attempt up to maxAttempts times, pausing backoff.Delay(n)
// between attempts, where n is the 1-indexed attempt that just failed.
// attempt is handed a context bounded to attemptTimeout; its return value
// reports whether the failure is retryable. Exhaustion (or a fatal status)
// surfaces as a ProviderError carrying the last status code seen.
func withRetry[T any](ctx context.Context, providerID string, attempt func(ctx context.Context, n int) (T, attemptResult, error)) (T, error) {
	var zero T
	var lastErr error
	var lastResult attemptResult

	for n := 1; n <= maxAttempts; n++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		value, result, err := attempt(attemptCtx, n)
		cancel()

		if err == nil {
			return value, nil
		}
		lastErr = err
		lastResult = result

		if !result.retryable || n == maxAttempts {
			break
		}

		if sleepErr := backoff.Sleep(ctx, backoff.Delay(n)); sleepErr != nil {
			return zero, sleepErr
		}
	}

	return zero, &ProviderError{
		Provider:   providerID,
		StatusCode: lastResult.statusCode,
		Message:    lastErr.Error(),
	}
}
