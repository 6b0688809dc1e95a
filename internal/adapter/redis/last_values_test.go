package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastValues_FullTableEvictsExpiredFirst(t *testing.T) {
	clock := clockwork.NewFakeClock()
	last := newLastValues(clock)

	for i := range maxFallbackEntries {
		last.put(fmt.Sprintf("user_cache:%d", i), "old")
	}
	last.put("user_cache:overflow", "new")
	_, ok := last.get("user_cache:overflow")
	require.False(t, ok, "a full table of fresh values refuses new keys")

	last.put("user_cache:0", "updated")
	value, ok := last.get("user_cache:0")
	require.True(t, ok, "known keys can always be refreshed")
	assert.Equal(t, "updated", value)

	clock.Advance(fallbackTTL + time.Second)
	last.put("user_cache:overflow", "new")

	value, ok = last.get("user_cache:overflow")
	assert.True(t, ok)
	assert.Equal(t, "new", value)
	assert.Equal(t, 1, last.len(), "every expired entry went in one pass")
}

func TestLastValues_Drop(t *testing.T) {
	last := newLastValues(clockwork.NewFakeClock())
	last.put("a", "1")
	last.put("b", "2")

	last.drop("a", "missing")

	_, ok := last.get("a")
	assert.False(t, ok)
	value, ok := last.get("b")
	assert.True(t, ok)
	assert.Equal(t, "2", value)
}

func TestCircuitBreakerHook_PipelinedWriteDropsLastValue(t *testing.T) {
	hook := NewCircuitBreakerHook(nil, clockwork.NewFakeClock())
	ctx := context.Background()

	warm := hook.ProcessHook(succeeding("v"))
	require.NoError(t, warm(ctx, goredis.NewStringCmd(ctx, "get", "user_cache:7")))

	pipeline := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error { return nil })
	require.NoError(t, pipeline(ctx, []goredis.Cmder{
		goredis.NewIntCmd(ctx, "del", "user_cache:7"),
		goredis.NewIntCmd(ctx, "publish", "forumcast:events", "{}"),
	}))

	trip(t, hook)
	process := hook.ProcessHook(failing(nil))
	assert.ErrorIs(t, process(ctx, goredis.NewStringCmd(ctx, "get", "user_cache:7")), circuitbreaker.ErrOpen)
}
