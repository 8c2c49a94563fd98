package domain

import "time"

// DirectoryUser is a managed identity as the upstream identity API represents it.
// Field names follow the upstream wire format so records pass through to the console unchanged.
type DirectoryUser struct {
	UserID        string         `json:"user_id"`
	Email         string         `json:"email"`
	EmailVerified bool           `json:"email_verified"`
	Name          string         `json:"name,omitempty"`
	Nickname      string         `json:"nickname,omitempty"`
	Picture       string         `json:"picture,omitempty"`
	CreatedAt     string         `json:"created_at,omitempty"`
	UpdatedAt     string         `json:"updated_at,omitempty"`
	LastLogin     string         `json:"last_login,omitempty"`
	LoginsCount   int            `json:"logins_count"`
	Blocked       bool           `json:"blocked"`
	AppMetadata   map[string]any `json:"app_metadata,omitempty"`
	UserMetadata  map[string]any `json:"user_metadata,omitempty"`
}

// Connection identifies an upstream user-store partition.
type Connection struct {
	ID       string
	Name     string
	Strategy string
}

// Export job states reported by the upstream API.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// ExportJob is an asynchronous bulk user export.
type ExportJob struct {
	ID       string
	Status   string
	Location string
	// Raw holds the last status payload for diagnostics.
	Raw []byte
}

// ExportQuery selects a page of the exported directory.
type ExportQuery struct {
	Search  string
	Page    int
	PerPage int
}

// ExportPage is one page of the filtered export.
type ExportPage struct {
	Users  []DirectoryUser `json:"users"`
	Total  int             `json:"total"`
	Start  int             `json:"start"`
	Limit  int             `json:"limit"`
	Length int             `json:"length"`
}

// CachedToken is the single cached upstream access token.
type CachedToken struct {
	Value     string
	ExpiresAt time.Time
}

// ValidAt reports whether the token can still be used at now.
func (t CachedToken) ValidAt(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// UpstreamResponse is an upstream reply forwarded verbatim.
type UpstreamResponse struct {
	StatusCode int
	Body       []byte
}
