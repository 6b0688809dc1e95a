package httpserver

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/forumcast/internal/domain"
)

// bearerToken reads the token from the "auth" query parameter or the Authorization header.
// The query parameter wins so browser websocket clients, which cannot set headers, can
// authenticate.
func bearerToken(c echo.Context) string {
	if token := c.QueryParam("auth"); token != "" {
		return token
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// caller resolves the request's identity. A missing token yields a nil identity; an invalid
// one yields ErrNotAuthenticated.
func (s *Server) caller(c echo.Context) (*domain.Identity, error) {
	return s.identity.Resolve(c.Request().Context(), bearerToken(c))
}
