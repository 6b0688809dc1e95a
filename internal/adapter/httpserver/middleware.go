package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/forumcast/internal/adapter/metrics"
	"github.com/pscheid92/forumcast/internal/app"
	"github.com/pscheid92/forumcast/internal/domain"
	"github.com/pscheid92/forumcast/internal/platform/correlation"
	apperrors "github.com/pscheid92/forumcast/internal/platform/errors"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// ErrorHandlingMiddleware renders errors as apperrors JSON. Domain sentinels map to their
// status and machine-readable code. m may be nil.
func ErrorHandlingMiddleware(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				if m != nil {
					m.Errors.WithLabelValues(string(httpErrorType(httpErr.Code))).Inc()
				}
				return err
			}

			structuredErr := toAppError(err)
			logError(c, structuredErr)
			if m != nil {
				m.Errors.WithLabelValues(string(structuredErr.Type)).Inc()
			}

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

// toAppError maps domain sentinels to structured errors. Anything unrecognized is internal.
func toAppError(err error) *apperrors.Error {
	var structuredErr *apperrors.Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		return apperrors.UnauthorizedError("not logged in").WithCode("not_logged_in")
	case errors.Is(err, domain.ErrNotAnAdmin):
		return apperrors.ForbiddenError("not an admin").WithCode("not_an_admin")
	case errors.Is(err, domain.ErrNotAuthorized):
		return apperrors.ForbiddenError("not authorized").WithCode("not_authorized")
	case errors.Is(err, domain.ErrTaglineNotFound):
		return apperrors.NotFoundError("tagline not found").WithCode("couldnt_find_tagline")
	case errors.Is(err, app.ErrInvalidTagline):
		return apperrors.ValidationError(err.Error()).WithCode("invalid_tagline")
	case errors.Is(err, domain.ErrInvalidRoomKey):
		return apperrors.ValidationError(err.Error()).WithCode("invalid_room")
	default:
		return apperrors.AsStructuredError(err)
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	if err.Code != "" {
		attrs = append(attrs, "code", err.Code)
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeRateLimited:
		slog.InfoContext(ctx, "Rate limited", attrs...)
	case apperrors.TypeUnauthorized, apperrors.TypeForbidden:
		slog.InfoContext(ctx, "Access denied", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// httpErrorType classifies errors echo renders itself (404 routes, rate limiter, bind failures)
// for the error counter.
func httpErrorType(status int) apperrors.ErrorType {
	switch status {
	case http.StatusBadRequest:
		return apperrors.TypeValidation
	case http.StatusTooManyRequests:
		return apperrors.TypeRateLimited
	case http.StatusUnauthorized:
		return apperrors.TypeUnauthorized
	case http.StatusForbidden:
		return apperrors.TypeForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperrors.TypeNotFound
	case http.StatusConflict:
		return apperrors.TypeConflict
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return apperrors.TypeExternal
	default:
		return apperrors.TypeInternal
	}
}
