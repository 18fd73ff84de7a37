package resiliency_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/util/resiliency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) resiliency.RetryPolicy {
	return resiliency.RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Multiplier: 2.0}
}

// TestDo_SucceedsAfterTransientFailures verifies transient errors are retried
// until the budget allows success.
func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	out, err := resiliency.Do(context.Background(), fastPolicy(3), func(ctx context.Context, attempt int) (string, error) {
		calls++
		if calls < 3 {
			return "", contracts.Faultf(contracts.KindTransient, "blip %d", calls)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

// TestDo_NonRetryableShortCircuits verifies validation errors are never
// re-attempted.
func TestDo_NonRetryableShortCircuits(t *testing.T) {
	calls := 0
	_, err := resiliency.Do(context.Background(), fastPolicy(3), func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, contracts.Faultf(contracts.KindSchemaViolation, "bad payload")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, contracts.KindSchemaViolation, contracts.KindOf(err))
}

// TestDo_BudgetExhausted verifies the last error surfaces after the final
// attempt.
func TestDo_BudgetExhausted(t *testing.T) {
	calls := 0
	_, err := resiliency.Do(context.Background(), fastPolicy(3), func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, contracts.Faultf(contracts.KindThrottled, "throttled")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, contracts.KindThrottled, contracts.KindOf(err))
}

// TestDo_ContextCancelStopsBackoff verifies cancellation interrupts the
// backoff sleep rather than leaking a timer wait.
func TestDo_ContextCancelStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := resiliency.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, Multiplier: 2.0}

	done := make(chan error, 1)
	go func() {
		_, err := resiliency.Do(ctx, policy, func(ctx context.Context, attempt int) (int, error) {
			return 0, contracts.Faultf(contracts.KindTransient, "always fails")
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

// TestGate_FailsFastWhenSaturated verifies the backpressure contract: over
// the queue bound, callers get Throttled immediately.
func TestGate_FailsFastWhenSaturated(t *testing.T) {
	g := resiliency.NewGate("test", 1, 0)

	require.NoError(t, g.Acquire(context.Background()))

	err := g.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, contracts.KindThrottled, contracts.KindOf(err))

	g.Release()
	require.NoError(t, g.Acquire(context.Background()))
	g.Release()
}

// TestBreaker_OpensAndProbes verifies the breaker opens at the failure
// threshold and allows a probe after the reset timeout.
func TestBreaker_OpensAndProbes(t *testing.T) {
	cb := resiliency.NewCircuitBreaker("adapter", 2, 10*time.Millisecond)

	require.NoError(t, cb.Allow())
	cb.Failure()
	cb.Failure()

	err := cb.Allow()
	require.Error(t, err)
	assert.Equal(t, contracts.KindThrottled, contracts.KindOf(err))

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, cb.Allow(), "half-open probe allowed after reset timeout")
	cb.Success()
	require.NoError(t, cb.Allow())
}
