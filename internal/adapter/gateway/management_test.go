package gateway

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"identity-hub/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticTokens implements domain.TokenSource for testing.
type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token(context.Context) (string, error) {
	return s.token, s.err
}

func TestManagementGateway_Do_PassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/users/auth0%7C123", r.URL.EscapedPath())
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "Bearer mgmt-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"blocked": true}, body)

		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"statusCode":400,"message":"Payload validation error"}`))
	}))
	defer server.Close()

	gw := NewManagementGateway(server.URL, staticTokens{token: "mgmt-token"}, 5*time.Second)
	resp, err := gw.Do(context.Background(), http.MethodPatch, "/users/auth0%7C123", map[string]any{"blocked": true})

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"statusCode":400,"message":"Payload validation error"}`, string(resp.Body))
}

func TestManagementGateway_Do_NoBodyOnGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		assert.Empty(t, data)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	gw := NewManagementGateway(server.URL, staticTokens{token: "t"}, 5*time.Second)
	resp, err := gw.Do(context.Background(), http.MethodGet, "/roles", nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestManagementGateway_Do_TokenFailure(t *testing.T) {
	gw := NewManagementGateway("http://unused", staticTokens{err: domain.ErrUpstreamAuth}, 5*time.Second)
	resp, err := gw.Do(context.Background(), http.MethodGet, "/roles", nil)

	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, domain.ErrUpstreamAuth))
}

func TestManagementGateway_Do_TransportFailure(t *testing.T) {
	gw := NewManagementGateway("http://127.0.0.1:1", staticTokens{token: "t"}, time.Second)
	_, err := gw.Do(context.Background(), http.MethodGet, "/roles", nil)

	assert.True(t, errors.Is(err, domain.ErrUpstreamRequest))
}

func TestManagementGateway_FindConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/connections", r.URL.Path)
		assert.Equal(t, "auth0", r.URL.Query().Get("strategy"))
		w.Write([]byte(`[
			{"id":"con_other","name":"Legacy-DB","strategy":"auth0"},
			{"id":"con_123","name":"Username-Password-Authentication","strategy":"auth0"}
		]`))
	}))
	defer server.Close()

	gw := NewManagementGateway(server.URL, staticTokens{token: "t"}, 5*time.Second)
	conn, err := gw.FindConnection(context.Background(), "auth0", "Username-Password-Authentication")

	require.NoError(t, err)
	assert.Equal(t, "con_123", conn.ID)
}

func TestManagementGateway_FindConnection_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"con_other","name":"Legacy-DB","strategy":"auth0"}]`))
	}))
	defer server.Close()

	gw := NewManagementGateway(server.URL, staticTokens{token: "t"}, 5*time.Second)
	conn, err := gw.FindConnection(context.Background(), "auth0", "Username-Password-Authentication")

	assert.Nil(t, conn)
	assert.True(t, errors.Is(err, domain.ErrConnectionNotFound))
}

func TestManagementGateway_CreateUsersExport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/jobs/users-exports", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body exportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "con_123", body.ConnectionID)
		assert.Equal(t, "json", body.Format)
		assert.Equal(t, []exportField{{Name: "user_id"}, {Name: "email"}}, body.Fields)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"job_abc","status":"pending","type":"users_export"}`))
	}))
	defer server.Close()

	gw := NewManagementGateway(server.URL, staticTokens{token: "t"}, 5*time.Second)
	job, err := gw.CreateUsersExport(context.Background(), "con_123", []string{"user_id", "email"})

	require.NoError(t, err)
	assert.Equal(t, "job_abc", job.ID)
	assert.Equal(t, domain.JobStatusPending, job.Status)
}

func TestManagementGateway_CreateUsersExport_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"Too many jobs"}`))
	}))
	defer server.Close()

	gw := NewManagementGateway(server.URL, staticTokens{token: "t"}, 5*time.Second)
	_, err := gw.CreateUsersExport(context.Background(), "con_123", nil)

	assert.True(t, errors.Is(err, domain.ErrExportJobCreate))
	assert.Contains(t, err.Error(), "Too many jobs")
}

func TestManagementGateway_GetJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/jobs/job_abc", r.URL.Path)
		w.Write([]byte(`{"id":"job_abc","status":"completed","location":"https://files.example.com/export.json.gz"}`))
	}))
	defer server.Close()

	gw := NewManagementGateway(server.URL, staticTokens{token: "t"}, 5*time.Second)
	job, err := gw.GetJob(context.Background(), "job_abc")

	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, "https://files.example.com/export.json.gz", job.Location)
	assert.NotEmpty(t, job.Raw)
}

func TestManagementGateway_DownloadExport(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(`{"user_id":"auth0|1","email":"a@example.com"}` + "\n"))
	require.NoError(t, zw.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "pre-signed downloads must not carry the upstream bearer")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	gw := NewManagementGateway("http://unused", staticTokens{token: "t"}, 5*time.Second)
	body, err := gw.DownloadExport(context.Background(), server.URL+"/export.json.gz")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), data)
}

func TestManagementGateway_DownloadExport_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	gw := NewManagementGateway("http://unused", staticTokens{token: "t"}, 5*time.Second)
	body, err := gw.DownloadExport(context.Background(), server.URL)

	assert.Nil(t, body)
	assert.True(t, errors.Is(err, domain.ErrExportDownload))
}
