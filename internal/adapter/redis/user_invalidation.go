package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

// UserInvalidationChannel carries decimal user ids whose cached record is stale, e.g. after
// the forum backend changes an admin flag or a moderator list.
const UserInvalidationChannel = "forumcast:user_invalidate"

// UserInvalidationSubscriber drops users from this instance's cache when any instance or the
// forum backend announces a change.
type UserInvalidationSubscriber struct {
	rdb   *goredis.Client
	cache *UserCache
}

func NewUserInvalidationSubscriber(rdb *goredis.Client, cache *UserCache) *UserInvalidationSubscriber {
	return &UserInvalidationSubscriber{rdb: rdb, cache: cache}
}

// Start blocks until ctx is cancelled or the subscription closes.
func (s *UserInvalidationSubscriber) Start(ctx context.Context) {
	consume(ctx, s.rdb, UserInvalidationChannel, s.handleInvalidation)
}

func (s *UserInvalidationSubscriber) handleInvalidation(ctx context.Context, payload string) {
	userID, err := strconv.ParseInt(payload, 10, 64)
	switch {
	case err != nil, userID <= 0:
		slog.Warn("Ignoring user invalidation without a valid id", "payload", payload)
	default:
		// Invalidate drops the memory entry before it touches Redis, so a failure here still
		// leaves this instance consistent.
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			slog.Warn("User invalidation only reached the memory cache", "user_id", userID, "error", err)
			return
		}
		slog.Debug("Invalidated cached user", "user_id", userID)
	}
}

// PublishUserInvalidation tells every instance to forget userID.
func PublishUserInvalidation(ctx context.Context, rdb goredis.Cmdable, userID int64) error {
	err := rdb.Publish(ctx, UserInvalidationChannel, strconv.FormatInt(userID, 10)).Err()
	if err != nil {
		return fmt.Errorf("failed to publish invalidation of user %d: %w", userID, err)
	}
	return nil
}
