// Package ratelimit enforces per-owner execution rate limits with a redis
// token bucket. The bucket state is updated atomically by a Lua script so
// concurrent trigger instances share one budget.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// tokenBucketScript handles the token bucket algorithm atomically in Redis.
// KEYS[1] = bucket key (e.g. "owner_limit:alice")
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity (max tokens)
// ARGV[3] = cost (tokens to consume)
// ARGV[4] = current unix timestamp (seconds, microsecond precision)
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    local added = elapsed * rate
    tokens = tokens + added
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 120)

return allowed
`)

// Policy bounds an owner's pipeline starts.
type Policy struct {
	RPM   int
	Burst int
}

// OwnerLimiter rates-limits pipeline executions per owner.
type OwnerLimiter struct {
	rdb    *redis.Client
	policy Policy
}

// NewOwnerLimiter creates a limiter with the given policy.
func NewOwnerLimiter(rdb *redis.Client, policy Policy) *OwnerLimiter {
	if policy.RPM <= 0 {
		policy.RPM = 60
	}
	if policy.Burst <= 0 {
		policy.Burst = 10
	}
	return &OwnerLimiter{rdb: rdb, policy: policy}
}

// Allow consumes one token from the owner's bucket. Saturation surfaces as
// Throttled; redis outages fail open so a degraded limiter never blocks the
// pipeline.
func (l *OwnerLimiter) Allow(ctx context.Context, ownerID string) error {
	key := fmt.Sprintf("owner_limit:%s", ownerID)
	rate := float64(l.policy.RPM) / 60.0
	now := float64(time.Now().UnixMicro()) / 1e6

	allowed, err := tokenBucketScript.Run(ctx, l.rdb, []string{key}, rate, l.policy.Burst, 1, now).Int()
	if err != nil {
		return nil
	}
	if allowed != 1 {
		return contracts.Faultf(contracts.KindThrottled, "owner %s over execution rate limit", ownerID)
	}
	return nil
}
