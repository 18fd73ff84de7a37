package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/redis/go-redis/v9"
)

// CacheTTL is how long a cached inference response stays valid.
const CacheTTL = 7 * 24 * time.Hour

// CachingClient memoizes inference responses in redis, keyed by the
// canonical-JSON hash of the full message list plus the model id. For
// identical inputs the cached response preserves the determinism contract
// without spending tokens.
type CachingClient struct {
	inner Client
	rdb   *redis.Client
	log   *slog.Logger
}

// NewCachingClient wraps inner with a redis-backed response cache.
func NewCachingClient(inner Client, rdb *redis.Client) *CachingClient {
	return &CachingClient{
		inner: inner,
		rdb:   rdb,
		log:   slog.Default().With("component", "llm-cache"),
	}
}

func (c *CachingClient) ModelID() string { return c.inner.ModelID() }

// Chat returns a cached response when one exists, otherwise calls through
// and stores the result. Cache failures are logged and ignored; the cache is
// an optimization, never a correctness dependency.
func (c *CachingClient) Chat(ctx context.Context, msgs []Message, options *SamplingOptions) (*Response, error) {
	key, err := c.cacheKey(msgs)
	if err != nil {
		return c.inner.Chat(ctx, msgs, options)
	}

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached Response
		if err := json.Unmarshal(raw, &cached); err == nil {
			c.log.DebugContext(ctx, "llm cache hit", "key", key)
			return &cached, nil
		}
	}

	resp, err := c.inner.Chat(ctx, msgs, options)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(resp); err == nil {
		if err := c.rdb.Set(ctx, key, raw, CacheTTL).Err(); err != nil {
			c.log.WarnContext(ctx, "llm cache write failed", "error", err)
		}
	}
	return resp, nil
}

func (c *CachingClient) cacheKey(msgs []Message) (string, error) {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize cache key: %w", err)
	}
	sum := sha256.Sum256(append(canonical, []byte(c.inner.ModelID())...))
	return "llmcache:" + hex.EncodeToString(sum[:]), nil
}
