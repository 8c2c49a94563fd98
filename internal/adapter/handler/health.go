package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether an optional dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	tokenStore Pinger
}

// NewHealthHandler creates a health handler. tokenStore may be nil when the token
// slot is held in memory.
func NewHealthHandler(tokenStore Pinger) *HealthHandler {
	return &HealthHandler{tokenStore: tokenStore}
}

// Handle processes the /health endpoint. A shared token store outage is reported
// but does not fail the check, since requests fall back to direct exchanges.
func (h *HealthHandler) Handle(c echo.Context) error {
	resp := map[string]string{
		"status": "healthy",
	}

	if h.tokenStore != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.tokenStore.Ping(ctx); err != nil {
			resp["token_store"] = "unavailable"
		} else {
			resp["token_store"] = "ok"
		}
	}

	return c.JSON(http.StatusOK, resp)
}
