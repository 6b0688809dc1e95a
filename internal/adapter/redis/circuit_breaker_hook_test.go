package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/forumcast/internal/adapter/metrics"
)

func failing(err error) goredis.ProcessHook {
	return func(context.Context, goredis.Cmder) error { return err }
}

func succeeding(value string) goredis.ProcessHook {
	return func(_ context.Context, cmd goredis.Cmder) error {
		if c, ok := cmd.(*goredis.StringCmd); ok {
			c.SetVal(value)
		}
		return nil
	}
}

func trip(t *testing.T, hook *CircuitBreakerHook) {
	t.Helper()
	ctx := context.Background()
	process := hook.ProcessHook(failing(errors.New("redis down")))
	for range 5 {
		_ = process(ctx, goredis.NewStringCmd(ctx, "set", "key", "value"))
	}
	require.Equal(t, circuitbreaker.OpenState, hook.State())
}

func TestCircuitBreakerHook_NormalOperation(t *testing.T) {
	hook := NewCircuitBreakerHook(nil, clockwork.NewFakeClock())
	ctx := context.Background()

	process := hook.ProcessHook(succeeding("v"))
	for range 10 {
		require.NoError(t, process(ctx, goredis.NewStringCmd(ctx, "get", "key")))
	}

	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_NilReplyIsNotAFailure(t *testing.T) {
	hook := NewCircuitBreakerHook(nil, clockwork.NewFakeClock())
	ctx := context.Background()

	process := hook.ProcessHook(failing(goredis.Nil))
	for range 10 {
		err := process(ctx, goredis.NewStringCmd(ctx, "get", "missing"))
		assert.ErrorIs(t, err, goredis.Nil)
	}

	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_TransientFailures(t *testing.T) {
	hook := NewCircuitBreakerHook(nil, clockwork.NewFakeClock())
	ctx := context.Background()

	process := hook.ProcessHook(failing(errors.New("connection refused")))
	for range 2 {
		err := process(ctx, goredis.NewStringCmd(ctx, "get", "key"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
	}

	assert.Equal(t, circuitbreaker.ClosedState, hook.State(), "below the minimum number of executions")
}

func TestCircuitBreakerHook_FailsFastWhenOpen(t *testing.T) {
	hook := NewCircuitBreakerHook(nil, clockwork.NewFakeClock())
	trip(t, hook)

	called := false
	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		called = true
		return nil
	})

	ctx := context.Background()
	err := process(ctx, goredis.NewStringCmd(ctx, "set", "key", "value"))

	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.False(t, called, "redis must not be called while the circuit is open")
}

func TestCircuitBreakerHook_PipelineFailsFastWhenOpen(t *testing.T) {
	hook := NewCircuitBreakerHook(nil, clockwork.NewFakeClock())
	trip(t, hook)

	process := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error {
		t.Fatal("pipeline must not run while the circuit is open")
		return nil
	})

	err := process(context.Background(), nil)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestCircuitBreakerHook_ClosesAfterSuccessfulTrial(t *testing.T) {
	hook := newCircuitBreakerHook(20*time.Millisecond, nil, clockwork.NewFakeClock())
	trip(t, hook)

	time.Sleep(50 * time.Millisecond)

	ctx := context.Background()
	process := hook.ProcessHook(succeeding("v"))
	require.NoError(t, process(ctx, goredis.NewStringCmd(ctx, "get", "key")))

	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_ServesLastValueWhenOpen(t *testing.T) {
	hook := NewCircuitBreakerHook(nil, clockwork.NewFakeClock())
	ctx := context.Background()

	warm := hook.ProcessHook(succeeding(`{"id":7,"admin":true}`))
	require.NoError(t, warm(ctx, goredis.NewStringCmd(ctx, "get", "user_cache:7")))

	trip(t, hook)

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		t.Fatal("redis must not be called while the circuit is open")
		return nil
	})

	cmd := goredis.NewStringCmd(ctx, "get", "user_cache:7")
	require.NoError(t, process(ctx, cmd))
	assert.Equal(t, `{"id":7,"admin":true}`, cmd.Val())

	miss := goredis.NewStringCmd(ctx, "get", "user_cache:8")
	assert.ErrorIs(t, process(ctx, miss), circuitbreaker.ErrOpen)
}

func TestCircuitBreakerHook_FallbackExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hook := NewCircuitBreakerHook(nil, clock)
	ctx := context.Background()

	warm := hook.ProcessHook(succeeding("v"))
	require.NoError(t, warm(ctx, goredis.NewStringCmd(ctx, "get", "key")))

	trip(t, hook)
	clock.Advance(fallbackTTL + time.Second)

	process := hook.ProcessHook(failing(nil))
	err := process(ctx, goredis.NewStringCmd(ctx, "get", "key"))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestCircuitBreakerHook_Metrics(t *testing.T) {
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	hook := NewCircuitBreakerHook(m, clockwork.NewFakeClock())

	trip(t, hook)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitBreakerState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitStateChanges.WithLabelValues("open")))
}

func TestCircuitBreakerHook_DeleteDropsLastValue(t *testing.T) {
	tests := []struct {
		name string
		cmd  func(ctx context.Context) goredis.Cmder
	}{
		{"del", func(ctx context.Context) goredis.Cmder { return goredis.NewIntCmd(ctx, "del", "user_cache:7") }},
		{"del several", func(ctx context.Context) goredis.Cmder {
			return goredis.NewIntCmd(ctx, "del", "user_cache:1", "user_cache:7")
		}},
		{"set", func(ctx context.Context) goredis.Cmder {
			return goredis.NewStatusCmd(ctx, "set", "user_cache:7", `{"id":7}`, "ex", 300)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook := NewCircuitBreakerHook(nil, clockwork.NewFakeClock())
			ctx := context.Background()

			warm := hook.ProcessHook(succeeding(`{"id":7,"admin":true}`))
			require.NoError(t, warm(ctx, goredis.NewStringCmd(ctx, "get", "user_cache:7")))
			require.NoError(t, warm(ctx, tt.cmd(ctx)))

			trip(t, hook)

			process := hook.ProcessHook(failing(nil))
			cmd := goredis.NewStringCmd(ctx, "get", "user_cache:7")
			assert.ErrorIs(t, process(ctx, cmd), circuitbreaker.ErrOpen)
			assert.Empty(t, cmd.Val())
		})
	}
}

func TestCircuitBreakerHook_DeleteWhileOpenDropsLastValue(t *testing.T) {
	hook := NewCircuitBreakerHook(nil, clockwork.NewFakeClock())
	ctx := context.Background()

	warm := hook.ProcessHook(succeeding(`{"id":7,"admin":true}`))
	require.NoError(t, warm(ctx, goredis.NewStringCmd(ctx, "get", "user_cache:7")))

	trip(t, hook)

	process := hook.ProcessHook(failing(nil))
	assert.ErrorIs(t, process(ctx, goredis.NewIntCmd(ctx, "del", "user_cache:7")), circuitbreaker.ErrOpen)

	cmd := goredis.NewStringCmd(ctx, "get", "user_cache:7")
	assert.ErrorIs(t, process(ctx, cmd), circuitbreaker.ErrOpen)
}

func TestCircuitBreakerHook_MissDropsLastValue(t *testing.T) {
	hook := NewCircuitBreakerHook(nil, clockwork.NewFakeClock())
	ctx := context.Background()

	warm := hook.ProcessHook(succeeding(`{"id":7,"admin":true}`))
	require.NoError(t, warm(ctx, goredis.NewStringCmd(ctx, "get", "user_cache:7")))

	gone := hook.ProcessHook(failing(goredis.Nil))
	assert.ErrorIs(t, gone(ctx, goredis.NewStringCmd(ctx, "get", "user_cache:7")), goredis.Nil)

	trip(t, hook)

	process := hook.ProcessHook(failing(nil))
	assert.ErrorIs(t, process(ctx, goredis.NewStringCmd(ctx, "get", "user_cache:7")), circuitbreaker.ErrOpen)
}
