package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"identity-hub/internal/domain"
	"identity-hub/utils/logger"
	"identity-hub/utils/validator"
)

// Request is one inbound management call. Path is in escaped form: it is split on
// "/" and each segment is then decoded once into an opaque value.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// blockRequest is the only body accepted by the block route.
type blockRequest struct {
	Blocked *bool `json:"blocked" validate:"required"`
}

// rolesRequest is the body of the role assignment and removal routes.
type rolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,required"`
}

// maxQueryInt bounds page and per_page so offsets cannot overflow.
const maxQueryInt = 1_000_000

type handlerFunc func(ctx context.Context, req *Request, ids []string) (*domain.UpstreamResponse, error)

// route binds a method and a segment pattern to an operation. A "{id}" segment
// matches any single non-empty segment.
type route struct {
	name     string
	method   string
	segments []string
	handle   handlerFunc
}

func (r route) match(method string, segments []string) ([]string, bool) {
	if r.method != method || len(r.segments) != len(segments) {
		return nil, false
	}
	var ids []string
	for i, want := range r.segments {
		switch {
		case want == "{id}":
			if segments[i] == "" {
				return nil, false
			}
			ids = append(ids, segments[i])
		case want != segments[i]:
			return nil, false
		}
	}
	return ids, true
}

// Router maps inbound management calls to upstream operations.
type Router struct {
	api      domain.ManagementAPI
	exporter domain.UserExporter
	validate *validator.Validator
	logger   *slog.Logger
	routes   []route
}

// NewRouter creates a router over the management API and the bulk exporter.
func NewRouter(api domain.ManagementAPI, exporter domain.UserExporter, v *validator.Validator, l *slog.Logger) *Router {
	r := &Router{api: api, exporter: exporter, validate: v, logger: l}

	// Evaluated in order; literal segments are listed before {id} at the same position.
	r.routes = []route{
		{name: "export_users", method: http.MethodGet, segments: []string{"users", "export-all"}, handle: r.exportUsers},
		{name: "list_users", method: http.MethodGet, segments: []string{"users"}, handle: r.listUsers},
		{name: "create_user", method: http.MethodPost, segments: []string{"users"}, handle: r.createUser},
		{name: "get_user_roles", method: http.MethodGet, segments: []string{"users", "{id}", "roles"}, handle: r.getUserRoles},
		{name: "assign_user_roles", method: http.MethodPost, segments: []string{"users", "{id}", "roles"}, handle: r.changeUserRoles},
		{name: "remove_user_roles", method: http.MethodDelete, segments: []string{"users", "{id}", "roles"}, handle: r.changeUserRoles},
		{name: "block_user", method: http.MethodPatch, segments: []string{"users", "{id}", "block"}, handle: r.blockUser},
		{name: "send_verification_email", method: http.MethodPost, segments: []string{"users", "{id}", "verification-email"}, handle: r.sendVerificationEmail},
		{name: "get_user", method: http.MethodGet, segments: []string{"users", "{id}"}, handle: r.getUser},
		{name: "update_user", method: http.MethodPatch, segments: []string{"users", "{id}"}, handle: r.updateUser},
		{name: "delete_user", method: http.MethodDelete, segments: []string{"users", "{id}"}, handle: r.deleteUser},
		{name: "list_roles", method: http.MethodGet, segments: []string{"roles"}, handle: r.listRoles},
	}
	return r
}

// Dispatch runs the first route matching req. Unmatched calls return *domain.RouteNotFoundError.
func (r *Router) Dispatch(ctx context.Context, req *Request) (*domain.UpstreamResponse, error) {
	method := strings.ToUpper(req.Method)
	segments, err := splitSegments(req.Path)
	if err != nil {
		return nil, err
	}

	for _, rt := range r.routes {
		ids, ok := rt.match(method, segments)
		if !ok {
			continue
		}
		ctx = logger.WithOperation(ctx, rt.name)
		logger.NewContextLogger(r.logger).WithContext(ctx).DebugContext(ctx, "dispatching management call")
		return rt.handle(ctx, req, ids)
	}

	return nil, &domain.RouteNotFoundError{Method: req.Method, Path: req.Path}
}

func (r *Router) exportUsers(ctx context.Context, req *Request, _ []string) (*domain.UpstreamResponse, error) {
	page, err := intParam(req.Query, "page", 0)
	if err != nil {
		return nil, err
	}
	perPage, err := intParam(req.Query, "per_page", DefaultPerPage)
	if err != nil {
		return nil, err
	}

	result, err := r.exporter.Execute(ctx, domain.ExportQuery{
		Search:  req.Query.Get("search"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &domain.UpstreamResponse{StatusCode: http.StatusOK, Body: body}, nil
}

func (r *Router) listUsers(ctx context.Context, req *Request, _ []string) (*domain.UpstreamResponse, error) {
	page, err := intParam(req.Query, "page", 0)
	if err != nil {
		return nil, err
	}
	perPage, err := intParam(req.Query, "per_page", DefaultPerPage)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/users?page=%d&per_page=%d&include_totals=true&sort=created_at:-1", page, perPage)
	if search := req.Query.Get("search"); search != "" {
		endpoint += "&q=" + url.QueryEscape(search)
	}
	return r.api.Do(ctx, http.MethodGet, endpoint, nil)
}

func (r *Router) createUser(ctx context.Context, req *Request, _ []string) (*domain.UpstreamResponse, error) {
	body, err := jsonBody(req.Body)
	if err != nil {
		return nil, err
	}
	return r.api.Do(ctx, http.MethodPost, "/users", body)
}

func (r *Router) getUser(ctx context.Context, _ *Request, ids []string) (*domain.UpstreamResponse, error) {
	return r.api.Do(ctx, http.MethodGet, userPath(ids[0]), nil)
}

func (r *Router) updateUser(ctx context.Context, req *Request, ids []string) (*domain.UpstreamResponse, error) {
	body, err := jsonBody(req.Body)
	if err != nil {
		return nil, err
	}
	return r.api.Do(ctx, http.MethodPatch, userPath(ids[0]), body)
}

func (r *Router) deleteUser(ctx context.Context, _ *Request, ids []string) (*domain.UpstreamResponse, error) {
	return r.api.Do(ctx, http.MethodDelete, userPath(ids[0]), nil)
}

func (r *Router) getUserRoles(ctx context.Context, _ *Request, ids []string) (*domain.UpstreamResponse, error) {
	return r.api.Do(ctx, http.MethodGet, userPath(ids[0])+"/roles", nil)
}

func (r *Router) changeUserRoles(ctx context.Context, req *Request, ids []string) (*domain.UpstreamResponse, error) {
	var body rolesRequest
	if err := r.decode(req.Body, &body); err != nil {
		return nil, err
	}
	return r.api.Do(ctx, strings.ToUpper(req.Method), userPath(ids[0])+"/roles", body)
}

func (r *Router) blockUser(ctx context.Context, req *Request, ids []string) (*domain.UpstreamResponse, error) {
	var body blockRequest
	if err := r.decode(req.Body, &body); err != nil {
		return nil, err
	}
	return r.api.Do(ctx, http.MethodPatch, userPath(ids[0]), map[string]bool{"blocked": *body.Blocked})
}

func (r *Router) sendVerificationEmail(ctx context.Context, req *Request, ids []string) (*domain.UpstreamResponse, error) {
	body := map[string]any{}
	if len(bytes.TrimSpace(req.Body)) > 0 {
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
		}
	}
	body["user_id"] = ids[0]
	return r.api.Do(ctx, http.MethodPost, "/jobs/verification-email", body)
}

func (r *Router) listRoles(ctx context.Context, _ *Request, _ []string) (*domain.UpstreamResponse, error) {
	return r.api.Do(ctx, http.MethodGet, "/roles", nil)
}

// decode unmarshals a JSON body into dst and validates it.
func (r *Router) decode(body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: request body is required", domain.ErrInvalidPayload)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}
	if err := r.validate.Validate(dst); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}
	return nil
}

// jsonBody checks that body is a JSON document and returns it for forwarding unchanged.
func jsonBody(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: request body is required", domain.ErrInvalidPayload)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: request body is not valid JSON", domain.ErrInvalidPayload)
	}
	return json.RawMessage(body), nil
}

func intParam(q url.Values, name string, fallback int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxQueryInt {
		return 0, fmt.Errorf("%w: %s must be an integer between 0 and %d", domain.ErrInvalidPayload, name, maxQueryInt)
	}
	return n, nil
}

// splitSegments splits an escaped path and decodes each segment once, so an encoded
// "/" stays inside its segment.
func splitSegments(path string) ([]string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed path segment %q", domain.ErrInvalidPayload, seg)
		}
		segments[i] = decoded
	}
	return segments, nil
}

func userPath(id string) string {
	return "/users/" + url.PathEscape(id)
}
