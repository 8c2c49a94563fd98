package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"identity-hub/internal/domain"

	"github.com/tidwall/gjson"
)

// exportField names one column of a users export.
type exportField struct {
	Name string `json:"name"`
}

// exportRequest is the body of a users-export job creation.
type exportRequest struct {
	ConnectionID string        `json:"connection_id"`
	Format       string        `json:"format"`
	Fields       []exportField `json:"fields"`
}

// FindConnection returns the connection matching strategy and name.
func (g *ManagementGateway) FindConnection(ctx context.Context, strategy, name string) (*domain.Connection, error) {
	resp, err := g.Do(ctx, http.MethodGet, "/connections?strategy="+url.QueryEscape(strategy), nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: connections lookup returned status %d: %s",
			domain.ErrUpstreamRequest, resp.StatusCode, resp.Body)
	}

	var found *domain.Connection
	gjson.ParseBytes(resp.Body).ForEach(func(_, conn gjson.Result) bool {
		if conn.Get("strategy").String() == strategy && conn.Get("name").String() == name {
			found = &domain.Connection{
				ID:       conn.Get("id").String(),
				Name:     name,
				Strategy: strategy,
			}
			return false
		}
		return true
	})
	if found == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrConnectionNotFound, name)
	}
	return found, nil
}

// CreateUsersExport submits an NDJSON users-export job for a connection.
func (g *ManagementGateway) CreateUsersExport(ctx context.Context, connectionID string, fields []string) (*domain.ExportJob, error) {
	body := exportRequest{
		ConnectionID: connectionID,
		Format:       "json",
		Fields:       make([]exportField, 0, len(fields)),
	}
	for _, f := range fields {
		body.Fields = append(body.Fields, exportField{Name: f})
	}

	resp, err := g.Do(ctx, http.MethodPost, "/jobs/users-exports", body)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrExportJobCreate, resp.StatusCode, resp.Body)
	}

	job := parseJob(resp.Body)
	if job.ID == "" {
		return nil, fmt.Errorf("%w: response has no job id", domain.ErrExportJobCreate)
	}
	return job, nil
}

// GetJob fetches the current state of a job.
func (g *ManagementGateway) GetJob(ctx context.Context, jobID string) (*domain.ExportJob, error) {
	resp, err := g.Do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: job status returned %d: %s",
			domain.ErrUpstreamRequest, resp.StatusCode, resp.Body)
	}
	return parseJob(resp.Body), nil
}

// DownloadExport opens the export file at location. The location is a pre-signed URL,
// so no upstream bearer is sent. The caller must close the returned body.
func (g *ManagementGateway) DownloadExport(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExportDownload, err)
	}

	resp, err := g.downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExportDownload, err)
	}
	if !isSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", domain.ErrExportDownload, resp.StatusCode)
	}
	return resp.Body, nil
}

func parseJob(body []byte) *domain.ExportJob {
	parsed := gjson.ParseBytes(body)
	return &domain.ExportJob{
		ID:       parsed.Get("id").String(),
		Status:   parsed.Get("status").String(),
		Location: parsed.Get("location").String(),
		Raw:      body,
	}
}
