package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"identity-hub/internal/domain"
	"identity-hub/metrics"
)

// downloadTimeout bounds a single export file download.
const downloadTimeout = 2 * time.Minute

// ManagementGateway talks to the upstream management API.
// Implements domain.ManagementAPI and domain.ExportAPI.
type ManagementGateway struct {
	baseURL        string
	tokens         domain.TokenSource
	httpClient     *http.Client
	downloadClient *http.Client
}

// NewManagementGateway creates a gateway with a tuned HTTP transport.
func NewManagementGateway(baseURL string, tokens domain.TokenSource, timeout time.Duration) *ManagementGateway {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}

	return &ManagementGateway{
		baseURL:        strings.TrimRight(baseURL, "/"),
		tokens:         tokens,
		httpClient:     &http.Client{Timeout: timeout, Transport: transport},
		downloadClient: &http.Client{Timeout: downloadTimeout},
	}
}

// Do sends an authenticated request to {base}/api/v2{path} and returns the upstream
// status and body unchanged.
func (g *ManagementGateway) Do(ctx context.Context, method, path string, body any) (*domain.UpstreamResponse, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode body: %w", domain.ErrUpstreamRequest, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+"/api/v2"+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrUpstreamRequest, err)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	return &domain.UpstreamResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
