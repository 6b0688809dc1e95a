package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/forumcast/internal/adapter/metrics"
	"github.com/pscheid92/forumcast/internal/domain"
)

const userCacheTTL = 10 * time.Minute

// UserCache is a domain.UserRepository that answers from memory, then Redis, then the wrapped
// repository. Admin flags change rarely; invalidation goes through UserInvalidationSubscriber.
type UserCache struct {
	rdb     goredis.Cmdable
	users   domain.UserRepository
	mem     *memoryCache
	clock   clockwork.Clock
	metrics *metrics.RedisMetrics
}

// NewUserCache wraps users. m may be nil.
func NewUserCache(rdb goredis.Cmdable, users domain.UserRepository, memCacheTTL time.Duration, clock clockwork.Clock, m *metrics.RedisMetrics) *UserCache {
	return &UserCache{
		rdb:     rdb,
		users:   users,
		mem:     newMemoryCache(memCacheTTL, clock),
		clock:   clock,
		metrics: m,
	}
}

// StartEvictionTimer runs a periodic goroutine that evicts expired in-memory entries.
// Returns a stop function that should be deferred.
func (c *UserCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.mem.evictExpired(); evicted > 0 {
					slog.Debug("Evicted expired user cache entries", "count", evicted, "remaining", c.mem.size())
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (c *UserCache) GetByID(ctx context.Context, userID int64) (*domain.User, error) {
	if user, ok := c.mem.get(userID); ok {
		c.observe("memory")
		return &user, nil
	}

	if user, ok := c.getCached(ctx, userID); ok {
		c.observe("redis")
		c.mem.set(userID, user)
		return &user, nil
	}

	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}
	c.observe("database")

	c.mem.set(userID, *user)
	c.writeCache(ctx, *user)
	return user, nil
}

// Invalidate evicts the user from both the in-memory cache and Redis.
func (c *UserCache) Invalidate(ctx context.Context, userID int64) error {
	c.mem.invalidate(userID)

	if err := c.rdb.Del(ctx, userCacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate user cache: %w", err)
	}
	return nil
}

func (c *UserCache) observe(layer string) {
	if c.metrics != nil {
		c.metrics.UserCacheLookups.WithLabelValues(layer).Inc()
	}
}

func (c *UserCache) writeCache(ctx context.Context, user domain.User) {
	encoded, err := json.Marshal(user)
	if err != nil {
		slog.Warn("Failed to marshal user for Redis cache", "user_id", user.ID, "error", err)
		return
	}

	if err := c.rdb.Set(ctx, userCacheKey(user.ID), encoded, userCacheTTL).Err(); err != nil {
		slog.Warn("Failed to populate Redis user cache", "user_id", user.ID, "error", err)
	}
}

func (c *UserCache) getCached(ctx context.Context, userID int64) (domain.User, bool) {
	data, err := c.rdb.Get(ctx, userCacheKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Warn("Redis user cache GET failed", "user_id", userID, "error", err)
		}
		return domain.User{}, false
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		slog.Warn("Failed to unmarshal cached user", "user_id", userID, "error", err)
		return domain.User{}, false
	}
	return user, true
}

func userCacheKey(userID int64) string {
	return "user_cache:" + strconv.FormatInt(userID, 10)
}

// memoryCache is an in-memory L1 cache with TTL-based expiry.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[int64]memoryCacheEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

type memoryCacheEntry struct {
	user      domain.User
	expiresAt time.Time
}

func newMemoryCache(ttl time.Duration, clock clockwork.Clock) *memoryCache {
	return &memoryCache{
		entries: make(map[int64]memoryCacheEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (c *memoryCache) get(userID int64) (domain.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[userID]
	if !ok || !c.clock.Now().Before(entry.expiresAt) {
		return domain.User{}, false
	}
	return entry.user, true
}

func (c *memoryCache) set(userID int64, user domain.User) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[userID] = memoryCacheEntry{
		user:      user,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

func (c *memoryCache) invalidate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

func (c *memoryCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *memoryCache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}
