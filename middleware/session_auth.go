package middleware

import (
	"context"
	"errors"
	"net/http"

	"identity-hub/internal/domain"
	"identity-hub/utils/logger"

	"github.com/labstack/echo/v4"
)

// SessionHeader carries the console session token.
const SessionHeader = "x-pl-auth-token"

// ClaimsKey is the echo.Context key holding the verified *domain.SessionClaims.
const ClaimsKey = "session_claims"

// SessionAuthenticator verifies a raw session token and its roles.
type SessionAuthenticator interface {
	Execute(ctx context.Context, raw string) (*domain.SessionClaims, error)
}

// SessionAuth rejects requests without an allowed session before any handler runs.
func SessionAuth(auth SessionAuthenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodOptions {
				return next(c)
			}

			ctx := c.Request().Context()
			claims, err := auth.Execute(ctx, c.Request().Header.Get(SessionHeader))
			if err != nil {
				if errors.Is(err, domain.ErrForbidden) {
					return echo.NewHTTPError(http.StatusForbidden, domain.ErrForbidden.Error())
				}
				if errors.Is(err, domain.ErrMissingCredential) {
					return echo.NewHTTPError(http.StatusUnauthorized, domain.ErrMissingCredential.Error())
				}
				return echo.NewHTTPError(http.StatusUnauthorized, domain.ErrInvalidCredential.Error())
			}

			c.Set(ClaimsKey, claims)
			c.SetRequest(c.Request().WithContext(logger.WithUserID(ctx, claims.Subject)))
			return next(c)
		}
	}
}
