package domain

import (
	"context"
	"io"
	"time"
)

// TokenSource supplies a bearer token for the upstream identity API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CredentialExchanger trades service credentials for an upstream access token and its lifetime.
type CredentialExchanger interface {
	Exchange(ctx context.Context) (string, time.Duration, error)
}

// TokenStore holds the single cached token slot.
type TokenStore interface {
	Load(ctx context.Context) (CachedToken, bool, error)
	Save(ctx context.Context, token CachedToken) error
}

// ManagementAPI issues authenticated calls against the upstream management API.
type ManagementAPI interface {
	Do(ctx context.Context, method, path string, body any) (*UpstreamResponse, error)
}

// ExportAPI covers the upstream calls used by a bulk export run.
type ExportAPI interface {
	FindConnection(ctx context.Context, strategy, name string) (*Connection, error)
	CreateUsersExport(ctx context.Context, connectionID string, fields []string) (*ExportJob, error)
	GetJob(ctx context.Context, jobID string) (*ExportJob, error)
	DownloadExport(ctx context.Context, location string) (io.ReadCloser, error)
}

// SessionVerifier checks the signature and lifetime of a session token.
type SessionVerifier interface {
	Verify(raw string) (*SessionClaims, error)
}

// UserExporter lists the full directory through a bulk export.
type UserExporter interface {
	Execute(ctx context.Context, q ExportQuery) (*ExportPage, error)
}
