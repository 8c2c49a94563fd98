package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// corsAllowHeaders are the request headers the console sends.
var corsAllowHeaders = []string{
	"authorization",
	"x-client-info",
	"apikey",
	"content-type",
	SessionHeader,
}

// CORS answers preflight requests and sets the allowed origin on every response.
func CORS(allowedOrigin string) echo.MiddlewareFunc {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{allowedOrigin},
		AllowMethods: []string{
			http.MethodPost,
			http.MethodGet,
			http.MethodOptions,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowHeaders:     corsAllowHeaders,
		AllowCredentials: true,
	})
}
