package redis

import (
	"context"
	"testing"
	"time"
)

func TestConsume_StopsOnCancelWithoutRedis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		consume(ctx, unreachableClient(t), "forumcast:events", func(context.Context, string) {
			t.Error("nothing was published")
		})
	}()

	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("consume kept running after cancel")
	}
}
