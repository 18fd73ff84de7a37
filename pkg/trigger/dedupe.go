package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeTTL = 24 * time.Hour

// RedisDeduper marks request ids with SETNX. Redis outages fail open: a
// duplicate execution is recoverable, a dropped upload is user-visible.
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

// NewRedisDeduper creates a deduper. Non-positive ttl selects 24h.
func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = dedupeTTL
	}
	return &RedisDeduper{
		rdb: rdb,
		ttl: ttl,
		log: slog.Default().With("component", "trigger"),
	}
}

// FirstDelivery reports whether requestID has not been seen within the ttl.
func (d *RedisDeduper) FirstDelivery(ctx context.Context, requestID string) bool {
	ok, err := d.rdb.SetNX(ctx, "appraisal:dedupe:"+requestID, 1, d.ttl).Result()
	if err != nil {
		d.log.WarnContext(ctx, "dedupe check failed, admitting delivery",
			"request_id", requestID, "error", err)
		return true
	}
	return ok
}
