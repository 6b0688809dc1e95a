package redis

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/forumcast/internal/adapter/metrics"
)

// NewClient parses redisURL (e.g. "redis://localhost:6379/0"), installs the metrics and
// circuit breaker hooks, and verifies the connection. m may be nil.
func NewClient(ctx context.Context, redisURL string, m *metrics.RedisMetrics, clock clockwork.Clock) (*goredis.Client, *CircuitBreakerHook, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if m != nil {
		rdb.AddHook(NewMetricsHook(m, clock))
	}
	breaker := NewCircuitBreakerHook(m, clock)
	rdb.AddHook(breaker)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return rdb, breaker, nil
}
