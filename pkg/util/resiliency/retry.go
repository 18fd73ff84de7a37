// Package resiliency provides the shared retry combinator, circuit breaker
// and bounded in-flight gate used by every external client in the pipeline.
package resiliency

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// RetryPolicy parameterizes the retry combinator. Every adapter, the LLM
// client and the orchestrator stages reuse this one implementation.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the second attempt
	Multiplier  float64       // exponential growth factor
	Jitter      float64       // fraction of the delay added at random, e.g. 0.2
	// Retryable decides whether an error may be re-attempted. Nil defaults
	// to contracts.Retryable (transient taxonomy only).
	Retryable func(error) bool
}

// StagePolicy is the per-stage default: 2 retries, 2s base, multiplier 2.0,
// jitter up to 20%.
func StagePolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Multiplier: 2.0, Jitter: 0.2}
}

// Do runs fn under the policy. It returns the last error when the budget is
// exhausted or the error is not retryable. The per-attempt count is passed to
// fn for logging and metrics.
func Do[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = contracts.Retryable
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := fn(ctx, attempt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt == attempts || !retryable(err) {
			break
		}
		if err := sleep(ctx, backoff(p, attempt)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

// backoff computes base * multiplier^(attempt-1) plus jitter.
func backoff(p RetryPolicy, attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1)))
	if p.Jitter > 0 {
		span := int64(float64(d) * p.Jitter)
		if span > 0 {
			if n, err := rand.Int(rand.Reader, big.NewInt(span)); err == nil {
				d += time.Duration(n.Int64())
			}
		}
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
