package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/pscheid92/forumcast/internal/adapter/metrics"
)

// The container starts with the first test that needs it, so unit-only runs never touch Docker.
var redisServer struct {
	once      sync.Once
	container *tcredis.RedisContainer
	url       string
	err       error
}

func TestMain(m *testing.M) {
	code := m.Run()
	if redisServer.container != nil {
		if err := testcontainers.TerminateContainer(redisServer.container); err != nil {
			fmt.Fprintf(os.Stderr, "redis container left running: %v\n", err)
		}
	}
	os.Exit(code)
}

func redisURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("needs a redis container")
	}
	redisServer.once.Do(func() {
		ctx := context.Background()
		redisServer.container, redisServer.err = tcredis.Run(ctx, "redis:7-alpine")
		if redisServer.err != nil {
			return
		}
		redisServer.url, redisServer.err = redisServer.container.ConnectionString(ctx)
	})
	require.NoError(t, redisServer.err, "redis container")
	return redisServer.url
}

// setupTestClient connects to the shared container with an empty keyspace.
func setupTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	url := redisURL(t)
	ctx := context.Background()

	client, _, err := NewClient(ctx, url, nil, clockwork.NewRealClock())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.FlushAll(ctx).Err())
	return client
}

// unreachableClient dials a closed port once per command and gives up after 100ms.
func unreachableClient(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClient_InstallsHooks(t *testing.T) {
	url := redisURL(t)
	ctx := context.Background()
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())

	client, breaker, err := NewClient(ctx, url, m, clockwork.NewRealClock())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(ctx, "forumcast:test", "1", time.Minute).Err())
	assert.Equal(t, "1", client.Get(ctx, "forumcast:test").Val())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("set", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("get", "success")))
	assert.Equal(t, circuitbreaker.ClosedState, breaker.State())
}

func TestNewClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{"unparseable", "not a url", "failed to parse redis URL"},
		{"wrong scheme", "http://127.0.0.1:6379", "failed to parse redis URL"},
		{"nothing listening", "redis://127.0.0.1:1/0", "failed to ping redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			client, breaker, err := NewClient(ctx, tt.url, nil, clockwork.NewRealClock())

			require.ErrorContains(t, err, tt.wantErr)
			assert.Nil(t, client)
			assert.Nil(t, breaker)
		})
	}
}
