package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/forumcast/internal/adapter/auth"
	"github.com/pscheid92/forumcast/internal/adapter/httpserver"
	"github.com/pscheid92/forumcast/internal/adapter/metrics"
	"github.com/pscheid92/forumcast/internal/adapter/postgres"
	"github.com/pscheid92/forumcast/internal/adapter/redis"
	"github.com/pscheid92/forumcast/internal/app"
	"github.com/pscheid92/forumcast/internal/hub"
	"github.com/pscheid92/forumcast/internal/platform/config"
	"github.com/pscheid92/forumcast/internal/platform/logging"
	"github.com/pscheid92/forumcast/internal/platform/retry"
	"github.com/pscheid92/forumcast/internal/platform/version"
)

const (
	userMemoryCacheTTL   = 10 * time.Second
	userEvictionInterval = time.Minute
	shutdownTimeout      = 10 * time.Second
)

// backgroundTasks runs the pub/sub subscribers until shutdown.
type backgroundTasks struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (b *backgroundTasks) run(ctx context.Context, name string, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(ctx)
		slog.Info("Background task stopped", "task", name)
	}()
}

func (b *backgroundTasks) stop() {
	b.cancel()
	b.wg.Wait()
}

func runGracefulShutdown(srv *httpserver.Server, tasks *backgroundTasks, h *hub.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		tasks.stop()
		h.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

const (
	sqlstateTooManyConnections   = "53300"
	sqlstateCannotConnectNow     = "57P03"
	sqlstateInvalidPassword      = "28P01"
	sqlstateInvalidAuthorization = "28000"
	sqlstateUnknownDatabase      = "3D000"
)

// classifyStartup waits longer for a backing service that is reachable but refusing work.
func classifyStartup(err error) retry.Action {
	if retry.UnlessCanceled(err) == retry.Stop {
		return retry.Stop
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateTooManyConnections, sqlstateCannotConnectNow:
			return retry.Busy
		case sqlstateInvalidPassword, sqlstateInvalidAuthorization, sqlstateUnknownDatabase:
			return retry.Stop
		}
	}

	var redisErr goredis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		if strings.HasPrefix(msg, "LOADING") || strings.HasPrefix(msg, "BUSY") {
			return retry.Busy
		}
		if strings.HasPrefix(msg, "WRONGPASS") || strings.HasPrefix(msg, "NOAUTH") {
			return retry.Stop
		}
	}
	return retry.Retry
}

func startupPolicy(component string, clock clockwork.Clock) retry.Policy {
	p := retry.Startup
	p.Clock = clock
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Backing service not ready, retrying", "component", component, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return p
}

func setupDB(cfg *config.Config, dbMetrics *metrics.DBMetrics, clock clockwork.Clock) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := retry.Do(ctx, startupPolicy("postgres", clock), classifyStartup, func() (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
			Tracer:   postgres.NewMetricsTracer(dbMetrics, clock),
		})
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if _, err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

type redisConn struct {
	client  *goredis.Client
	breaker *redis.CircuitBreakerHook
}

func setupRedis(cfg *config.Config, redisMetrics *metrics.RedisMetrics, clock clockwork.Clock) redisConn {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := retry.Do(ctx, startupPolicy("redis", clock), classifyStartup, func() (redisConn, error) {
		client, breaker, err := redis.NewClient(ctx, cfg.RedisURL, redisMetrics, clock)
		return redisConn{client: client, breaker: breaker}, err
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return conn
}

func healthChecks(pool *pgxpool.Pool, rc redisConn) []httpserver.HealthCheck {
	return []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error {
			if rc.breaker.State() == circuitbreaker.OpenState {
				return errors.New("redis circuit breaker open")
			}
			return rc.client.Ping(ctx).Err()
		}},
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	m := metrics.New(version.Get())

	pool := setupDB(cfg, m.DB, clock)
	defer pool.Close()

	rc := setupRedis(cfg, m.Redis, clock)
	defer func() { _ = rc.client.Close() }()

	userCache := redis.NewUserCache(rc.client, postgres.NewUserRepo(pool), userMemoryCacheTTL, clock, m.Redis)
	stopEviction := userCache.StartEvictionTimer(userEvictionInterval)
	defer stopEviction()

	identity := auth.NewJWTResolver(cfg.JWTSecret, cfg.JWTIssuer, userCache, clock)

	h := hub.New(clock, m.Hub)
	rooms := app.NewRooms(h, postgres.NewModeratorRepo(pool), cfg.ExclusiveRooms)
	taglines := app.NewTaglines(postgres.NewTaglineRepo(pool))

	taskCtx, cancelTasks := context.WithCancel(context.Background())
	tasks := &backgroundTasks{cancel: cancelTasks}
	tasks.run(taskCtx, "event_subscriber", redis.NewEventSubscriber(rc.client, cfg.EventsChannel, h, m.Events).Start)
	tasks.run(taskCtx, "user_invalidation", redis.NewUserInvalidationSubscriber(rc.client, userCache).Start)

	srv := httpserver.NewServer(cfg, httpserver.Services{
		Rooms:    rooms,
		Taglines: taglines,
		Hub:      h,
		Identity: identity,
	}, clock, m.Registry, m.HTTP, healthChecks(pool, rc))

	done := runGracefulShutdown(srv, tasks, h)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
