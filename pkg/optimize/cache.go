package optimize

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EvalCache memoizes engine analyses by genome hash in Redis. The engine is
// deterministic and pure, so a hit reproduces exactly what a fresh run
// would return. The cache is best-effort: any Redis failure is logged and
// treated as a miss, never surfaced to the evaluation.
type EvalCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    zerolog.Logger
}

// NewEvalCache connects to the Redis URL and verifies the connection.
func NewEvalCache(ctx context.Context, url string, ttl time.Duration, logger zerolog.Logger) (*EvalCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cache url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}
	return &EvalCache{rdb: rdb, ttl: ttl, prefix: "optibot:eval:", log: logger}, nil
}

// Get looks up the analysis cached for a genome hash.
func (c *EvalCache) Get(ctx context.Context, hash string) (*Analysis, bool) {
	data, err := c.rdb.Get(ctx, c.prefix+hash).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug().Err(err).Msg("eval cache get failed")
		}
		return nil, false
	}
	var a Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		c.log.Debug().Err(err).Msg("eval cache entry corrupt")
		return nil, false
	}
	return &a, true
}

// Set stores an analysis under a genome hash.
func (c *EvalCache) Set(ctx context.Context, hash string, a *Analysis) {
	data, err := json.Marshal(a)
	if err != nil {
		c.log.Debug().Err(err).Msg("eval cache marshal failed")
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+hash, data, c.ttl).Err(); err != nil {
		c.log.Debug().Err(err).Msg("eval cache set failed")
	}
}

// Close releases the Redis connection.
func (c *EvalCache) Close() error {
	return c.rdb.Close()
}
