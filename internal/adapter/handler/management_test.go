package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"identity-hub/internal/domain"
	"identity-hub/internal/usecase"
	"identity-hub/utils/validator"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDispatcher is a mock implementation of Dispatcher.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req *usecase.Request) (*domain.UpstreamResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UpstreamResponse), args.Error(1)
}

func newManagementServer(d Dispatcher) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = NewHTTPErrorHandler(discardLogger())
	h := NewManagementHandler(d)
	e.Any(ManagementMount, h.Handle)
	e.Any(ManagementMount+"/*", h.Handle)
	return e
}

func TestManagementHandler_PathQueryParameter(t *testing.T) {
	d := new(MockDispatcher)
	d.On("Dispatch", mock.Anything, mock.MatchedBy(func(r *usecase.Request) bool {
		return r.Method == http.MethodGet && r.Path == "/users/auth0%7C123"
	})).Return(&domain.UpstreamResponse{StatusCode: http.StatusOK, Body: []byte(`{"user_id":"auth0|123"}`)}, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth0-management?path=%2Fusers%2Fauth0%7C123", nil)
	rec := httptest.NewRecorder()
	newManagementServer(d).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"auth0|123"}`, rec.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, rec.Header().Get(echo.HeaderContentType))
	d.AssertExpectations(t)
}

func TestManagementHandler_WildcardPath(t *testing.T) {
	d := new(MockDispatcher)
	d.On("Dispatch", mock.Anything, mock.MatchedBy(func(r *usecase.Request) bool {
		return r.Method == http.MethodPatch &&
			r.Path == "/users/auth0%7C123/block" &&
			string(r.Body) == `{"blocked":true}`
	})).Return(&domain.UpstreamResponse{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil)

	req := httptest.NewRequest(http.MethodPatch, "/auth0-management/users/auth0%7C123/block", strings.NewReader(`{"blocked":true}`))
	rec := httptest.NewRecorder()
	newManagementServer(d).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	d.AssertExpectations(t)
}

func TestManagementHandler_QueryInsidePath(t *testing.T) {
	d := new(MockDispatcher)
	d.On("Dispatch", mock.Anything, mock.MatchedBy(func(r *usecase.Request) bool {
		return r.Path == "/users/export-all" &&
			r.Query.Get("page") == "2" &&
			r.Query.Get("search") == "jane"
	})).Return(&domain.UpstreamResponse{StatusCode: http.StatusOK, Body: []byte(`{"users":[]}`)}, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth0-management?path=%2Fusers%2Fexport-all%3Fpage%3D2&search=jane", nil)
	rec := httptest.NewRecorder()
	newManagementServer(d).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	d.AssertExpectations(t)
}

func TestManagementHandler_UpstreamStatusPassesThrough(t *testing.T) {
	d := new(MockDispatcher)
	d.On("Dispatch", mock.Anything, mock.Anything).
		Return(&domain.UpstreamResponse{StatusCode: http.StatusBadRequest, Body: []byte(`{"message":"Payload validation error"}`)}, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth0-management?path=/users", strings.NewReader(`{"email":"bad"}`))
	rec := httptest.NewRecorder()
	newManagementServer(d).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Payload validation error"}`, rec.Body.String())
}

func TestManagementHandler_EmptyUpstreamBody(t *testing.T) {
	d := new(MockDispatcher)
	d.On("Dispatch", mock.Anything, mock.Anything).
		Return(&domain.UpstreamResponse{StatusCode: http.StatusNoContent}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/auth0-management?path=/users/u1", nil)
	rec := httptest.NewRecorder()
	newManagementServer(d).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestManagementHandler_RouteNotFound(t *testing.T) {
	d := new(MockDispatcher)
	d.On("Dispatch", mock.Anything, mock.Anything).
		Return(nil, &domain.RouteNotFoundError{Method: "PATCH", Path: "/widgets/123"})

	req := httptest.NewRequest(http.MethodPatch, "/auth0-management?path=/widgets/123", nil)
	rec := httptest.NewRecorder()
	newManagementServer(d).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "PATCH", body["method"])
	assert.Equal(t, "/widgets/123", body["path"])
}

func TestManagementHandler_DomainErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"invalid payload", fmt.Errorf("%w: roles is required", domain.ErrInvalidPayload), http.StatusBadRequest},
		{"export failed", fmt.Errorf("%w: {\"status\":\"failed\"}", domain.ErrExportJobFailed), http.StatusInternalServerError},
		{"upstream auth", fmt.Errorf("%w: access_denied", domain.ErrUpstreamAuth), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := new(MockDispatcher)
			d.On("Dispatch", mock.Anything, mock.Anything).Return(nil, tt.err)

			req := httptest.NewRequest(http.MethodGet, "/auth0-management?path=/users", nil)
			rec := httptest.NewRecorder()
			newManagementServer(d).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

// recordingAPI implements domain.ManagementAPI and records upstream paths.
type recordingAPI struct {
	calls []string
}

func (r *recordingAPI) Do(_ context.Context, method, path string, _ any) (*domain.UpstreamResponse, error) {
	r.calls = append(r.calls, method+" "+path)
	return &domain.UpstreamResponse{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
}

// noExport implements domain.UserExporter.
type noExport struct{}

func (noExport) Execute(context.Context, domain.ExportQuery) (*domain.ExportPage, error) {
	return &domain.ExportPage{Users: []domain.DirectoryUser{}}, nil
}

func TestManagementHandler_IDsStayOpaque(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		want   string
	}{
		{"wildcard encoded slash", http.MethodGet, "/auth0-management/users/a%2Froles", "GET /users/a%2Froles"},
		{"wildcard pipe", http.MethodGet, "/auth0-management/users/auth0%7C1/roles", "GET /users/auth0%7C1/roles"},
		{"path parameter", http.MethodGet, "/auth0-management?path=%2Fusers%2Fauth0%7C1", "GET /users/auth0%7C1"},
		{"path parameter with space", http.MethodDelete, "/auth0-management?path=%2Fusers%2Fa%20b", "DELETE /users/a%20b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &recordingAPI{}
			router := usecase.NewRouter(api, noExport{}, validator.New(), discardLogger())

			req := httptest.NewRequest(tt.method, tt.target, nil)
			rec := httptest.NewRecorder()
			newManagementServer(router).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, []string{tt.want}, api.calls)
		})
	}
}
