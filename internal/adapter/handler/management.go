package handler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"identity-hub/internal/domain"
	"identity-hub/internal/usecase"

	"github.com/labstack/echo/v4"
)

// ManagementMount is the path the management surface is served under.
const ManagementMount = "/auth0-management"

// Dispatcher routes one management call to the upstream API.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *usecase.Request) (*domain.UpstreamResponse, error)
}

// ManagementHandler serves the proxied user-management API.
type ManagementHandler struct {
	router Dispatcher
}

// NewManagementHandler creates a new management handler.
func NewManagementHandler(router Dispatcher) *ManagementHandler {
	return &ManagementHandler{router: router}
}

// Handle dispatches the call named by the "path" query parameter, or by the URL path
// below the mount when the parameter is absent. The upstream status and body are
// written back unchanged.
func (h *ManagementHandler) Handle(c echo.Context) error {
	req := c.Request()

	query := c.QueryParams()
	path := query.Get("path")
	if path == "" {
		// Kept escaped so an encoded "/" inside an id is not taken as a separator.
		path = strings.TrimPrefix(req.URL.EscapedPath(), ManagementMount)
	} else {
		// The console sends routes such as "/users?page=1" inside the path parameter.
		if i := strings.IndexByte(path, '?'); i >= 0 {
			extra, err := url.ParseQuery(path[i+1:])
			if err != nil {
				return mapDomainError(domain.ErrInvalidPayload)
			}
			for k, vs := range extra {
				for _, v := range vs {
					query.Add(k, v)
				}
			}
			path = path[:i]
		}
		// The parameter value was already decoded by query parsing.
		path = escapeSegments(path)
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	resp, err := h.router.Dispatch(req.Context(), &usecase.Request{
		Method: req.Method,
		Path:   path,
		Query:  query,
		Body:   body,
	})
	if err != nil {
		return mapDomainError(err)
	}

	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return c.NoContent(resp.StatusCode)
	}
	return c.Blob(resp.StatusCode, echo.MIMEApplicationJSON, resp.Body)
}

func escapeSegments(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
