package eventpublisher

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/forumcast/internal/adapter/redis"
	"github.com/pscheid92/forumcast/internal/domain"
)

// EventPublisher implements domain.EventPublisher over Redis pub/sub. Every instance
// subscribed to the channel delivers the event to its own connections.
type EventPublisher struct {
	rdb     goredis.Cmdable
	channel string
}

var _ domain.EventPublisher = (*EventPublisher)(nil)

func New(rdb goredis.Cmdable, channel string) *EventPublisher {
	return &EventPublisher{rdb: rdb, channel: channel}
}

func (ep *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	if event.Room != nil {
		if err := event.Room.Validate(); err != nil {
			return err
		}
	}
	if !json.Valid(event.Payload) {
		return fmt.Errorf("event payload is not valid JSON")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := ep.rdb.Publish(ctx, ep.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// PublishUserChanged tells every instance to drop its cached copy of the user.
func (ep *EventPublisher) PublishUserChanged(ctx context.Context, userID int64) error {
	if err := redis.PublishUserInvalidation(ctx, ep.rdb, userID); err != nil {
		return fmt.Errorf("publish user change: %w", err)
	}
	return nil
}
