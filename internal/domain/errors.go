package domain

import (
	"errors"
	"fmt"
)

// Authentication errors.
var (
	ErrMissingCredential = errors.New("missing authentication token")
	ErrInvalidCredential = errors.New("invalid or expired authentication token")
	ErrForbidden         = errors.New("insufficient permissions")
	ErrMissingServiceKey = errors.New("missing authorization header")
	ErrInvalidServiceKey = errors.New("invalid authorization header")
)

// Upstream coordination errors.
var (
	ErrUpstreamAuth       = errors.New("failed to get upstream token")
	ErrUpstreamRequest    = errors.New("upstream request failed")
	ErrConnectionNotFound = errors.New("export connection not found")
	ErrExportJobCreate    = errors.New("failed to create export job")
	ErrExportJobFailed    = errors.New("export job failed")
	ErrExportJobTimeout   = errors.New("export job timed out")
	ErrExportDownload     = errors.New("failed to download export")
	ErrExportParse        = errors.New("failed to parse export")
)

// Request errors.
var (
	ErrInvalidPayload = errors.New("invalid request payload")
)

// Rate limiting errors.
var (
	ErrRateLimited = errors.New("rate limit exceeded")
)

// RouteNotFoundError reports a method/path pair with no matching operation.
type RouteNotFoundError struct {
	Method string
	Path   string
}

func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("endpoint not found: %s %s", e.Method, e.Path)
}
