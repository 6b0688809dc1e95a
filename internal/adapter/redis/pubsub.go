package redis

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
)

// consume delivers every message published on channel to handle, one at a time, until ctx
// is cancelled or the client closes the subscription. go-redis resubscribes after reconnects.
func consume(ctx context.Context, rdb *goredis.Client, channel string, handle func(ctx context.Context, payload string)) {
	pubsub := rdb.Subscribe(ctx, channel)
	defer func() { _ = pubsub.Close() }()

	slog.Info("Subscribed", "channel", channel)
	defer slog.Info("Unsubscribed", "channel", channel)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			handle(ctx, msg.Payload)
		}
	}
}
