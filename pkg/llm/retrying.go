package llm

import (
	"context"
	"time"

	"github.com/cardworks/appraisal/pkg/util/resiliency"
)

// RetryingClient wraps a Client with the inference retry contract: bounded
// attempts with exponential backoff and jitter, retrying only on
// Throttled/Timeout/5xx faults.
type RetryingClient struct {
	inner  Client
	policy resiliency.RetryPolicy
}

// NewRetryingClient wraps inner with a total budget of maxRetries attempts,
// baseDelay backoff, multiplier 2.0 and jitter up to 20%.
func NewRetryingClient(inner Client, maxRetries int, baseDelay time.Duration) *RetryingClient {
	return &RetryingClient{
		inner: inner,
		policy: resiliency.RetryPolicy{
			MaxAttempts: maxRetries,
			BaseDelay:   baseDelay,
			Multiplier:  2.0,
			Jitter:      0.2,
		},
	}
}

func (c *RetryingClient) ModelID() string { return c.inner.ModelID() }

// Chat retries the wrapped call under the policy.
func (c *RetryingClient) Chat(ctx context.Context, msgs []Message, options *SamplingOptions) (*Response, error) {
	return resiliency.Do(ctx, c.policy, func(ctx context.Context, attempt int) (*Response, error) {
		return c.inner.Chat(ctx, msgs, options)
	})
}
