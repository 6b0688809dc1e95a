package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"

	"github.com/pscheid92/forumcast/internal/adapter/auth"
	"github.com/pscheid92/forumcast/internal/adapter/eventpublisher"
	"github.com/pscheid92/forumcast/internal/domain"
	"github.com/pscheid92/forumcast/internal/platform/logging"
)

const publishTimeout = 5 * time.Second

type options struct {
	room           string
	payload        string
	exclude        string
	invalidateUser int64
	channel        string
}

func main() {
	var (
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		channel  = flag.String("channel", envOr("EVENTS_CHANNEL", "forumcast:events"), "Event channel")
		room     = flag.StringP("room", "r", "", "Target room as kind:id (user, community, mod, post); empty addresses every client")
		payload  = flag.StringP("payload", "p", "", "JSON payload to deliver")
		exclude  = flag.StringP("exclude", "x", "", "Connection id to skip")
		user     = flag.Int64("invalidate-user", 0, "Drop the cached record of this user id on every instance")
		verbose  = flag.BoolP("verbose", "v", false, "Verbose logging")
		tokenFor = flag.Int64("token-for", 0, "Print a signed connection token for this user id and exit (uses JWT_SECRET, JWT_ISSUER)")
		tokenTTL = flag.Duration("token-ttl", time.Hour, "Lifetime of the token printed by --token-for")
	)
	flag.Parse()

	if *tokenFor != 0 {
		token, err := issueToken(os.Getenv("JWT_SECRET"), os.Getenv("JWT_ISSUER"), *tokenFor, *tokenTTL, clockwork.NewRealClock())
		if err != nil {
			log.Fatalf("Token issue failed: %v", err)
		}
		fmt.Println(token)
		return
	}

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}

	logLevel := "info"
	if *verbose {
		logLevel = "debug"
	}
	slog.SetDefault(logging.New(os.Stderr, logLevel, "text"))

	opts, err := goredis.ParseURL(*redisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	rdb := goredis.NewClient(opts)
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	slog.Debug("Connected to Redis", "url", sanitizeURL(*redisURL))

	o := options{room: *room, payload: *payload, exclude: *exclude, invalidateUser: *user, channel: *channel}
	if err := run(ctx, eventpublisher.New(rdb, o.channel), o); err != nil {
		log.Fatalf("Publish failed: %v", err)
	}
}

type publisher interface {
	Publish(ctx context.Context, event domain.Event) error
	PublishUserChanged(ctx context.Context, userID int64) error
}

func run(ctx context.Context, p publisher, o options) error {
	if o.invalidateUser != 0 {
		if o.invalidateUser < 0 {
			return fmt.Errorf("invalid user id %d", o.invalidateUser)
		}
		if err := p.PublishUserChanged(ctx, o.invalidateUser); err != nil {
			return err
		}
		slog.Info("Published user invalidation", "user_id", o.invalidateUser)
		if o.payload == "" {
			return nil
		}
	}

	event, err := buildEvent(o)
	if err != nil {
		return err
	}
	if err := p.Publish(ctx, event); err != nil {
		return err
	}

	target := "all"
	if event.Room != nil {
		target = event.Room.String()
	}
	slog.Info("Published event", "channel", o.channel, "room", target)
	return nil
}

func buildEvent(o options) (domain.Event, error) {
	if o.payload == "" {
		return domain.Event{}, errors.New("payload required (--payload)")
	}
	if !json.Valid([]byte(o.payload)) {
		return domain.Event{}, errors.New("payload is not valid JSON")
	}

	event := domain.Event{Payload: json.RawMessage(o.payload)}

	if o.room != "" {
		room, err := parseRoom(o.room)
		if err != nil {
			return domain.Event{}, err
		}
		event.Room = &room
	}

	if o.exclude != "" {
		id, err := uuid.Parse(o.exclude)
		if err != nil {
			return domain.Event{}, fmt.Errorf("invalid exclude connection id: %w", err)
		}
		event.Exclude = id
	}
	return event, nil
}

func issueToken(secret, issuer string, userID int64, ttl time.Duration, clock clockwork.Clock) (string, error) {
	if secret == "" {
		return "", errors.New("JWT_SECRET required")
	}
	if userID <= 0 {
		return "", fmt.Errorf("invalid user id %d", userID)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("invalid token ttl %s", ttl)
	}
	return auth.NewJWTResolver(secret, issuer, nil, clock).Issue(userID, ttl)
}

// parseRoom reads the "kind:id" form RoomKey.String produces.
func parseRoom(s string) (domain.RoomKey, error) {
	kind, rawID, ok := strings.Cut(s, ":")
	if !ok {
		return domain.RoomKey{}, fmt.Errorf("%w: expected kind:id, got %q", domain.ErrInvalidRoomKey, s)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return domain.RoomKey{}, fmt.Errorf("%w: bad id %q", domain.ErrInvalidRoomKey, rawID)
	}
	return domain.NewRoomKey(domain.RoomKind(kind), id)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func sanitizeURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) == 2 {
			credParts := strings.Split(parts[0], ":")
			if len(credParts) >= 2 {
				return credParts[0] + ":" + credParts[1] + ":***@" + parts[1]
			}
		}
	}
	return url
}
