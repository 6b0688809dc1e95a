package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/forumcast/internal/domain"
	apperrors "github.com/pscheid92/forumcast/internal/platform/errors"
)

type taglineRequest struct {
	Content string `json:"content"`
}

type taglineResponse struct {
	Tagline *domain.Tagline `json:"tagline"`
}

type taglineListResponse struct {
	Taglines []domain.Tagline `json:"taglines"`
}

type onlineResponse struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

func (s *Server) registerSiteRoutes() {
	limiter := newRateLimiter(s.config.APIRateLimit, s.config.APIRateBurst)

	api := s.echo.Group("/api/v3")
	api.GET("/online", s.handleOnline)

	taglines := api.Group("/site/tagline", limiter)
	taglines.GET("/list", s.handleListTaglines)
	taglines.GET("/random", s.handleRandomTagline)
	taglines.GET("/:id", s.handleGetTagline)
	taglines.POST("", s.handleCreateTagline)
	taglines.PUT("/:id", s.handleUpdateTagline)
	taglines.DELETE("/:id", s.handleDeleteTagline)
}

func (s *Server) handleOnline(c echo.Context) error {
	stats, err := s.hub.Stats(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to read hub stats", err)
	}

	if err := c.JSON(http.StatusOK, onlineResponse{Connections: stats.Connections, Rooms: stats.Rooms}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleListTaglines(c echo.Context) error {
	caller, err := s.caller(c)
	if err != nil {
		return err
	}

	taglines, err := s.taglines.List(c.Request().Context(), caller)
	if err != nil {
		return err
	}
	if taglines == nil {
		taglines = []domain.Tagline{}
	}

	if err := c.JSON(http.StatusOK, taglineListResponse{Taglines: taglines}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleRandomTagline(c echo.Context) error {
	tagline, err := s.taglines.Random(c.Request().Context())
	if err != nil {
		return err
	}
	return sendTagline(c, http.StatusOK, tagline)
}

func (s *Server) handleGetTagline(c echo.Context) error {
	caller, err := s.caller(c)
	if err != nil {
		return err
	}
	id, err := taglineID(c)
	if err != nil {
		return err
	}

	tagline, err := s.taglines.Get(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return sendTagline(c, http.StatusOK, tagline)
}

func (s *Server) handleCreateTagline(c echo.Context) error {
	caller, err := s.caller(c)
	if err != nil {
		return err
	}
	var req taglineRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithCode("bad_request")
	}

	tagline, err := s.taglines.Create(c.Request().Context(), caller, req.Content)
	if err != nil {
		return err
	}
	return sendTagline(c, http.StatusCreated, tagline)
}

func (s *Server) handleUpdateTagline(c echo.Context) error {
	caller, err := s.caller(c)
	if err != nil {
		return err
	}
	id, err := taglineID(c)
	if err != nil {
		return err
	}
	var req taglineRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithCode("bad_request")
	}

	tagline, err := s.taglines.Update(c.Request().Context(), caller, id, req.Content)
	if err != nil {
		return err
	}
	return sendTagline(c, http.StatusOK, tagline)
}

func (s *Server) handleDeleteTagline(c echo.Context) error {
	caller, err := s.caller(c)
	if err != nil {
		return err
	}
	id, err := taglineID(c)
	if err != nil {
		return err
	}

	if err := s.taglines.Delete(c.Request().Context(), caller, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func taglineID(c echo.Context) (int32, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return 0, apperrors.ValidationError("invalid tagline id").WithCode("bad_request").WithField("id", raw)
	}
	return int32(id), nil
}

func sendTagline(c echo.Context, status int, tagline *domain.Tagline) error {
	if err := c.JSON(status, taglineResponse{Tagline: tagline}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
