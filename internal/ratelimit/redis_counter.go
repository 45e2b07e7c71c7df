package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"narrata/internal/config"
	narrataerrors "narrata/internal/errors"
)

// RedisRPDCounter shares the requests-per-day budget across processes.
// A nil *RedisRPDCounter is valid and every method is a no-op, matching
// the disabled-cache shape narrata's other optional Redis backings use;
// callers that don't enable Redis fall back to Manager's in-process count.
type RedisRPDCounter struct {
	client redis.UniversalClient
}

// NewRedisRPDCounter connects to Redis when cfg.Enabled, returning nil
// (not an error) when it isn't.
func NewRedisRPDCounter(cfg config.RedisConfig) (*RedisRPDCounter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ratelimit redis ping: %w", err)
	}
	return &RedisRPDCounter{client: client}, nil
}

func (c *RedisRPDCounter) key(model string) string {
	return fmt.Sprintf("narrata:rpd:%s:%s", model, time.Now().UTC().Format("2006-01-02"))
}

// CheckAndIncrement atomically increments the daily counter for model and
// returns a requests_per_day_exceeded error once the count exceeds limit.
func (c *RedisRPDCounter) CheckAndIncrement(ctx context.Context, model string, limit int) error {
	if c == nil || c.client == nil || limit <= 0 {
		return nil
	}
	key := c.key(model)
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("ratelimit_redis_incr_error")
		return nil
	}
	if n == 1 {
		c.client.Expire(ctx, key, 25*time.Hour)
	}
	if int(n) > limit {
		return narrataerrors.New(narrataerrors.KindRateLimitExceeded, narrataerrors.ReasonRequestsPerDayExceeded, "daily request budget exhausted")
	}
	return nil
}

// Close closes the underlying Redis client.
func (c *RedisRPDCounter) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
