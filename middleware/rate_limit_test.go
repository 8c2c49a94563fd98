package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"identity-hub/internal/adapter/handler"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newRateLimitedServer(t *testing.T, rl *RateLimiter) *echo.Echo {
	t.Helper()
	t.Cleanup(rl.Stop)

	e := echo.New()
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.Use(rl.Middleware())
	e.Any("/auth0-management", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func serve(e *echo.Echo, method, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/auth0-management", nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	e := newRateLimitedServer(t, NewRateLimiter(rate.Limit(10), 10))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "192.0.2.1").Code)
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	e := newRateLimitedServer(t, NewRateLimiter(rate.Limit(1), 1))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "192.0.2.1").Code)

	rec := serve(e, http.MethodGet, "192.0.2.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
}

func TestRateLimiter_PerIP(t *testing.T) {
	e := newRateLimitedServer(t, NewRateLimiter(rate.Limit(1), 1))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "192.0.2.1").Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "192.0.2.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(e, http.MethodGet, "192.0.2.1").Code)
}

func TestRateLimiter_PerMinute(t *testing.T) {
	e := newRateLimitedServer(t, NewRateLimiterPerMinute(3))

	for range 3 {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "192.0.2.1").Code)
	}
	rec := serve(e, http.MethodGet, "192.0.2.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "20", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_PreflightNotCounted(t *testing.T) {
	e := newRateLimitedServer(t, NewRateLimiter(rate.Limit(1), 1))

	for range 5 {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodOptions, "192.0.2.1").Code)
	}
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "192.0.2.1").Code)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)
	rl.Stop()
	rl.Stop()
}
