package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pscheid92/forumcast/internal/adapter/metrics"
)

// The API only serves JSON, so the policy forbids loading anything and framing.
var securityHeaders = middleware.SecureConfig{
	ContentTypeNosniff:    "nosniff",
	XFrameOptions:         "DENY",
	HSTSMaxAge:            2 * 365 * 24 * 60 * 60,
	HSTSPreloadEnabled:    true,
	ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
	ReferrerPolicy:        "strict-origin-when-cross-origin",
}

// registerRoutes installs middleware outermost first. Metrics wrap the error middleware so
// the recorded status is the one the client saw.
func (s *Server) registerRoutes() {
	chain := []echo.MiddlewareFunc{
		middleware.Recover(),
		correlationMiddleware,
		requestLogger(),
	}
	if s.httpMetrics != nil {
		chain = append(chain, s.httpMetrics.Middleware())
	}
	chain = append(chain,
		ErrorHandlingMiddleware(s.httpMetrics),
		middleware.SecureWithConfig(securityHeaders),
	)
	s.echo.Use(chain...)

	s.registerHealthRoutes()
	s.registerSiteRoutes()
	s.echo.GET("/api/v3/ws", s.handleWebSocket)
	if s.registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.registry)))
	}
}

// requestLogger writes one line per request, except for scrapes and health checks.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Path()
			return path == "/metrics" || path == "/health/live" || path == "/health/ready"
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= 500 {
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.Any("error", v.Error))
			}
			slog.LogAttrs(c.Request().Context(), level, "Request", attrs...)
			return nil
		},
	})
}
