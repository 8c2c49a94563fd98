package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"identity-hub/internal/domain"

	"github.com/labstack/echo/v4"
)

// mapDomainError converts a domain error into an appropriate echo.HTTPError.
// Coordination failures keep their diagnostic message.
func mapDomainError(err error) *echo.HTTPError {
	var notFound *domain.RouteNotFoundError
	if errors.As(err, &notFound) {
		return echo.NewHTTPError(http.StatusNotFound, map[string]any{
			"error":  "Endpoint not found",
			"path":   notFound.Path,
			"method": notFound.Method,
		})
	}

	switch {
	case errors.Is(err, domain.ErrMissingCredential),
		errors.Is(err, domain.ErrInvalidCredential),
		errors.Is(err, domain.ErrMissingServiceKey),
		errors.Is(err, domain.ErrInvalidServiceKey):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())

	case errors.Is(err, domain.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, domain.ErrForbidden.Error())

	case errors.Is(err, domain.ErrInvalidPayload):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())

	case errors.Is(err, domain.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, domain.ErrRateLimited.Error())

	case errors.Is(err, domain.ErrUpstreamAuth),
		errors.Is(err, domain.ErrUpstreamRequest),
		errors.Is(err, domain.ErrConnectionNotFound),
		errors.Is(err, domain.ErrExportJobCreate),
		errors.Is(err, domain.ErrExportJobFailed),
		errors.Is(err, domain.ErrExportJobTimeout),
		errors.Is(err, domain.ErrExportDownload),
		errors.Is(err, domain.ErrExportParse):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())

	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

// NewHTTPErrorHandler renders every error as a JSON object with an "error" field.
func NewHTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if !errors.As(err, &he) {
			he = mapDomainError(err)
		}

		var body map[string]any
		switch m := he.Message.(type) {
		case map[string]any:
			body = m
		case string:
			body = map[string]any{"error": m}
		case error:
			body = map[string]any{"error": m.Error()}
		default:
			body = map[string]any{"error": fmt.Sprint(m)}
		}

		if he.Code >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request().Context(), "request error",
				"status", he.Code,
				"error", err)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(he.Code)
		} else {
			writeErr = c.JSON(he.Code, body)
		}
		if writeErr != nil {
			logger.ErrorContext(c.Request().Context(), "failed to write error response", "error", writeErr)
		}
	}
}
