package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/imglink/imglink/utils"
)

// RetryPolicy bounds the work DeleteWithRetry is allowed to do for one key.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy is used by the expiry sweep for first-pass deletions.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}

// DeadLetterRetryPolicy is the tighter budget for re-runs of already failed
// deletions: a retry of a retry, not a first attempt.
var DeadLetterRetryPolicy = RetryPolicy{MaxAttempts: 2, BaseDelay: 500 * time.Millisecond}

// DeleteResult is the terminal outcome of a retried deletion. Error carries
// the last failure's diagnostics when Success is false.
type DeleteResult struct {
	Success bool
	Key     string
	Error   string
}

// sleep is swapped out in tests to observe backoff without waiting.
var sleep = sleepContext

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// backoffDelay returns the wait before the given attempt (1-based): no wait
// before the first, then base*2^(attempt-2) doubling per retry.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return base << (attempt - 2)
}

// DeleteWithRetry attempts to delete one object, retrying transient failures
// with exponential backoff. It returns as soon as one attempt succeeds and
// never returns an error: exhausted retries resolve to a failure result.
func DeleteWithRetry(ctx context.Context, store Deleter, key string, policy RetryPolicy) DeleteResult {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var last DeleteOutcome
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if d := backoffDelay(attempt, policy.BaseDelay); d > 0 {
			utils.Sugar.Debugw("delete retry backoff", "key", key, "attempt", attempt, "wait", d)
			sleep(ctx, d)
			if err := ctx.Err(); err != nil {
				return DeleteResult{
					Success: false,
					Key:     key,
					Error:   fmt.Sprintf("gave up after %d attempts: %v", attempt-1, err),
				}
			}
		}

		last = store.DeleteObject(ctx, key)
		if last.Deleted {
			return DeleteResult{Success: true, Key: key}
		}
	}

	return DeleteResult{
		Success: false,
		Key:     key,
		Error:   fmt.Sprintf("failed after %d attempts: %s", policy.MaxAttempts, last.Err()),
	}
}
