package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newServiceAuthServer(apiKey string) *echo.Echo {
	e := echo.New()
	e.Use(ServiceAuth(apiKey))
	e.Any("/auth0-management", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func TestServiceAuth(t *testing.T) {
	tests := []struct {
		name     string
		apiKey   string
		header   string
		wantCode int
	}{
		{name: "presence only accepts any bearer", apiKey: "", header: "Bearer anon-key", wantCode: http.StatusOK},
		{name: "presence only rejects missing header", apiKey: "", header: "", wantCode: http.StatusUnauthorized},
		{name: "matching key", apiKey: "service-key", header: "Bearer service-key", wantCode: http.StatusOK},
		{name: "mismatched key", apiKey: "service-key", header: "Bearer other-key", wantCode: http.StatusUnauthorized},
		{name: "key without scheme", apiKey: "service-key", header: "service-key", wantCode: http.StatusUnauthorized},
		{name: "missing header with key configured", apiKey: "service-key", header: "", wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newServiceAuthServer(tt.apiKey)

			req := httptest.NewRequest(http.MethodGet, "/auth0-management", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestServiceAuth_PreflightPasses(t *testing.T) {
	e := newServiceAuthServer("service-key")

	req := httptest.NewRequest(http.MethodOptions, "/auth0-management", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
