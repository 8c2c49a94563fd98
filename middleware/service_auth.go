package middleware

import (
	"crypto/subtle"
	"net/http"

	"identity-hub/internal/domain"

	"github.com/labstack/echo/v4"
)

// ServiceAuth requires the Authorization header carrying the service credential.
// When apiKey is empty only presence is checked; otherwise the header must equal
// "Bearer <apiKey>", compared in constant time.
func ServiceAuth(apiKey string) echo.MiddlewareFunc {
	expected := []byte("Bearer " + apiKey)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodOptions {
				return next(c)
			}

			provided := c.Request().Header.Get(echo.HeaderAuthorization)
			if provided == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, domain.ErrMissingServiceKey.Error())
			}
			if apiKey != "" && subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, domain.ErrInvalidServiceKey.Error())
			}
			return next(c)
		}
	}
}
