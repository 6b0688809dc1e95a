package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pscheid92/forumcast/internal/adapter/metrics"
	"github.com/pscheid92/forumcast/internal/domain"
	"github.com/pscheid92/forumcast/internal/hub"
	"github.com/pscheid92/forumcast/internal/platform/config"
)

type roomService interface {
	UserJoin(ctx context.Context, caller *domain.Identity, userID int64, conn domain.ConnectionID) (domain.JoinAck, error)
	CommunityJoin(ctx context.Context, caller *domain.Identity, communityID int64, conn domain.ConnectionID) (domain.JoinAck, error)
	ModJoin(ctx context.Context, caller *domain.Identity, communityID int64, conn domain.ConnectionID) (domain.JoinAck, error)
	PostJoin(ctx context.Context, caller *domain.Identity, postID int64, conn domain.ConnectionID) (domain.JoinAck, error)
	Leave(ctx context.Context, key domain.RoomKey, conn domain.ConnectionID) error
}

type taglineService interface {
	List(ctx context.Context, caller *domain.Identity) ([]domain.Tagline, error)
	Random(ctx context.Context) (*domain.Tagline, error)
	Get(ctx context.Context, caller *domain.Identity, id int32) (*domain.Tagline, error)
	Create(ctx context.Context, caller *domain.Identity, content string) (*domain.Tagline, error)
	Update(ctx context.Context, caller *domain.Identity, id int32, content string) (*domain.Tagline, error)
	Delete(ctx context.Context, caller *domain.Identity, id int32) error
}

type connectionHub interface {
	Register(ctx context.Context, id domain.ConnectionID, sink hub.Sink, userID int64) error
	Unregister(id domain.ConnectionID)
	Stats(ctx context.Context) (hub.Stats, error)
}

// Services bundles what the handlers call into.
type Services struct {
	Rooms    roomService
	Taglines taglineService
	Hub      connectionHub
	Identity domain.IdentityResolver
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	rooms    roomService
	taglines taglineService
	hub      connectionHub
	identity domain.IdentityResolver

	upgrader websocket.Upgrader
	limits   *ConnectionLimits

	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer wires routes. registry and httpMetrics may be nil, which disables /metrics.
func NewServer(cfg *config.Config, svc Services, clock clockwork.Clock, registry *prometheus.Registry, httpMetrics *metrics.HTTPMetrics, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:     e,
		config:   cfg,
		clock:    clock,
		rooms:    svc.Rooms,
		taglines: svc.Taglines,
		hub:      svc.Hub,
		identity: svc.Identity,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
		},
		limits: NewConnectionLimits(
			int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP,
			connectionsPerSecond, connectionBurst, clock,
		),
		registry:     registry,
		httpMetrics:  httpMetrics,
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
