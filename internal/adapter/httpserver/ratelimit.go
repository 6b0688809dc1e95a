package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	apperrors "github.com/pscheid92/forumcast/internal/platform/errors"
)

// Idle client buckets are forgotten after this long; a returning client starts with a full burst.
const clientBucketTTL = 5 * time.Minute

// newRateLimiter gives every client IP one token bucket shared by all routes of the group.
// Denials are returned as errors so the error middleware renders and counts them.
func newRateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	buckets := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: clientBucketTTL,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: buckets,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(echo.Context, string, error) error {
			return apperrors.RateLimitedError("rate limit exceeded").WithCode(codeRateLimit)
		},
	})
}
