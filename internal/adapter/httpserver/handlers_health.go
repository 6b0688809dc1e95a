package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/pscheid92/forumcast/internal/hub"
	"github.com/pscheid92/forumcast/internal/platform/version"
)

const (
	startupCheckTimeout   = 2 * time.Second
	readinessCheckTimeout = 5 * time.Second

	checkOK  = "ok"
	hubCheck = "hub"
)

// HealthCheck is a named dependency check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type websocketUsage struct {
	Active int64 `json:"active"`
	Limit  int64 `json:"limit"`
}

type healthReport struct {
	Status     string            `json:"status"`
	Checks     map[string]string `json:"checks"`
	Hub        *hub.Stats        `json:"hub,omitempty"`
	Websockets *websocketUsage   `json:"websockets,omitempty"`
}

type livenessReport struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

// handleStartup only waits for external dependencies; the hub is running once the server exists.
func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupCheckTimeout)
	defer cancel()

	report := s.checkDependencies(ctx)
	return writeHealthReport(c, report)
}

func (s *Server) handleLiveness(c echo.Context) error {
	report := livenessReport{Status: "ok", Uptime: s.clock.Since(s.startTime).Seconds()}
	if err := c.JSON(http.StatusOK, report); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

// handleReadiness reports every dependency plus hub occupancy. A stopped hub makes the instance
// unready even when Postgres and Redis are fine.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessCheckTimeout)
	defer cancel()

	report := s.checkDependencies(ctx)

	stats, err := s.hub.Stats(ctx)
	if err != nil {
		report.Status = "unhealthy"
		report.Checks[hubCheck] = err.Error()
	} else {
		report.Checks[hubCheck] = checkOK
		report.Hub = &stats
	}

	active, limit := s.limits.Usage()
	report.Websockets = &websocketUsage{Active: active, Limit: limit}

	return writeHealthReport(c, report)
}

// checkDependencies runs every check concurrently so one slow dependency does not hide another.
func (s *Server) checkDependencies(ctx context.Context) healthReport {
	results := make([]string, len(s.healthChecks))

	var g errgroup.Group
	for i, hc := range s.healthChecks {
		g.Go(func() error {
			if err := hc.Check(ctx); err != nil {
				results[i] = err.Error()
				return err
			}
			results[i] = checkOK
			return nil
		})
	}
	failed := g.Wait() != nil

	report := healthReport{Status: "ready", Checks: make(map[string]string, len(results)+1)}
	if failed {
		report.Status = "unhealthy"
	}
	for i, hc := range s.healthChecks {
		report.Checks[hc.Name] = results[i]
	}
	return report
}

func writeHealthReport(c echo.Context, report healthReport) error {
	status := http.StatusOK
	if report.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	if err := c.JSON(status, report); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
