package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDeleter returns one outcome per call, repeating the last.
type scriptedDeleter struct {
	outcomes []DeleteOutcome
	calls    int
}

func (s *scriptedDeleter) DeleteObject(_ context.Context, _ string) DeleteOutcome {
	i := s.calls
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	s.calls++
	return s.outcomes[i]
}

func captureSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := sleep
	sleep = func(_ context.Context, d time.Duration) {
		slept = append(slept, d)
	}
	t.Cleanup(func() { sleep = orig })
	return &slept
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	assert.Equal(t, time.Duration(0), backoffDelay(1, base))
	assert.Equal(t, 1*time.Second, backoffDelay(2, base))
	assert.Equal(t, 2*time.Second, backoffDelay(3, base))
	assert.Equal(t, 4*time.Second, backoffDelay(4, base))
}

func TestDeleteWithRetry_SucceedsFirstAttempt(t *testing.T) {
	slept := captureSleeps(t)
	d := &scriptedDeleter{outcomes: []DeleteOutcome{{Deleted: true}}}

	result := DeleteWithRetry(context.Background(), d, "a.png", DefaultRetryPolicy)

	assert.True(t, result.Success)
	assert.Equal(t, "a.png", result.Key)
	assert.Equal(t, 1, d.calls)
	assert.Empty(t, *slept, "no backoff before the first attempt")
}

func TestDeleteWithRetry_RecoversAfterTransientFailure(t *testing.T) {
	slept := captureSleeps(t)
	d := &scriptedDeleter{outcomes: []DeleteOutcome{
		{ErrName: "SlowDown", ErrMessage: "throttled", StatusCode: 503},
		{Deleted: true},
	}}

	result := DeleteWithRetry(context.Background(), d, "b.png", DefaultRetryPolicy)

	assert.True(t, result.Success)
	assert.Equal(t, 2, d.calls)
	require.Len(t, *slept, 1)
	assert.Equal(t, DefaultRetryPolicy.BaseDelay, (*slept)[0])
}

func TestDeleteWithRetry_ExhaustsBudgetWithDoublingBackoff(t *testing.T) {
	slept := captureSleeps(t)
	d := &scriptedDeleter{outcomes: []DeleteOutcome{
		{ErrName: "InternalError", ErrMessage: "boom", StatusCode: 500},
	}}

	result := DeleteWithRetry(context.Background(), d, "c.png", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second})

	assert.False(t, result.Success)
	assert.Equal(t, 3, d.calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *slept)
	assert.True(t, strings.HasPrefix(result.Error, "failed after 3 attempts:"), result.Error)
	assert.Contains(t, result.Error, "InternalError (status 500): boom")
}

func TestDeleteWithRetry_ZeroMaxAttemptsStillTriesOnce(t *testing.T) {
	captureSleeps(t)
	d := &scriptedDeleter{outcomes: []DeleteOutcome{{Deleted: true}}}

	result := DeleteWithRetry(context.Background(), d, "d.png", RetryPolicy{})

	assert.True(t, result.Success)
	assert.Equal(t, 1, d.calls)
}

func TestDeleteWithRetry_StopsWhenContextCanceled(t *testing.T) {
	captureSleeps(t)
	d := &scriptedDeleter{outcomes: []DeleteOutcome{
		{ErrName: "InternalError", ErrMessage: "boom", StatusCode: 500},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := DeleteWithRetry(ctx, d, "e.png", RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second})

	assert.False(t, result.Success)
	assert.Equal(t, 1, d.calls, "no further attempts once the context is dead")
	assert.Contains(t, result.Error, "gave up after 1 attempts")
	assert.Contains(t, result.Error, context.Canceled.Error())
}

func TestDeleteOutcomeErr(t *testing.T) {
	assert.Empty(t, DeleteOutcome{Deleted: true}.Err())
	assert.Equal(t, "NoSuchBucket (status 404): bucket missing",
		DeleteOutcome{ErrName: "NoSuchBucket", ErrMessage: "bucket missing", StatusCode: 404}.Err())
	assert.Equal(t, "network: timeout",
		DeleteOutcome{ErrName: "network", ErrMessage: "timeout"}.Err())
}

func TestDeleteMany_ReportsFailedKeys(t *testing.T) {
	d := &mapDeleter{failing: map[string]bool{"x/2": true, "x/7": true}}

	keys := []string{"x/0", "x/1", "x/2", "x/3", "x/4", "x/5", "x/6", "x/7"}
	failed := DeleteMany(context.Background(), d, keys)

	assert.ElementsMatch(t, []string{"x/2", "x/7"}, failed)
}

type mapDeleter struct {
	failing map[string]bool
}

func (m *mapDeleter) DeleteObject(_ context.Context, key string) DeleteOutcome {
	if m.failing[key] {
		return DeleteOutcome{ErrName: "InternalError"}
	}
	return DeleteOutcome{Deleted: true}
}

func TestNewStorageKey(t *testing.T) {
	key := NewStorageKey("uploads", "cat.png")

	assert.True(t, strings.HasPrefix(key, "uploads/"))
	assert.True(t, strings.HasSuffix(key, "-cat.png"))
	assert.NotEqual(t, key, NewStorageKey("uploads", "cat.png"), "keys must not collide")
}
