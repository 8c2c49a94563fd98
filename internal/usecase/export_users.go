package usecase

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"identity-hub/internal/domain"
	"identity-hub/metrics"
	"identity-hub/utils/logger"

	"github.com/cenkalti/backoff/v5"
)

// Export defaults.
const (
	DefaultPerPage            = 50
	DefaultPollInterval       = 5 * time.Second
	DefaultMaxPollAttempts    = 60
	DefaultConnectionName     = "Username-Password-Authentication"
	DefaultConnectionStrategy = "auth0"

	// downloadAllowance is added to the polling window to bound the whole run.
	downloadAllowance = 2 * time.Minute
	// maxExportLine caps a single NDJSON record.
	maxExportLine = 4 << 20
)

// exportFields is the fixed column list of a users export.
var exportFields = []string{
	"user_id",
	"email",
	"email_verified",
	"name",
	"nickname",
	"picture",
	"created_at",
	"updated_at",
	"last_login",
	"logins_count",
	"blocked",
	"app_metadata",
	"user_metadata",
}

// exportOperation names the export run in outcome logs.
const exportOperation = "export_users"

// errJobPending marks a poll that saw a non-terminal job.
var errJobPending = errors.New("export job still pending")

// ExportConfig controls connection selection and polling.
type ExportConfig struct {
	ConnectionStrategy string
	ConnectionName     string
	PollInterval       time.Duration
	MaxAttempts        int
}

func (c ExportConfig) withDefaults() ExportConfig {
	if c.ConnectionStrategy == "" {
		c.ConnectionStrategy = DefaultConnectionStrategy
	}
	if c.ConnectionName == "" {
		c.ConnectionName = DefaultConnectionName
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxPollAttempts
	}
	return c
}

// ExportUsers lists the whole directory through an upstream bulk export job.
// Implements domain.UserExporter.
type ExportUsers struct {
	api    domain.ExportAPI
	cfg    ExportConfig
	logger *slog.Logger
}

// NewExportUsers creates a new ExportUsers usecase.
func NewExportUsers(api domain.ExportAPI, cfg ExportConfig, l *slog.Logger) *ExportUsers {
	return &ExportUsers{api: api, cfg: cfg.withDefaults(), logger: l}
}

// Execute runs one export and returns the requested page of the filtered directory.
// The run ignores caller cancellation and is bounded by its own ceiling.
func (uc *ExportUsers) Execute(ctx context.Context, q domain.ExportQuery) (*domain.ExportPage, error) {
	started := time.Now()

	ceiling := uc.cfg.PollInterval*time.Duration(uc.cfg.MaxAttempts) + downloadAllowance
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ceiling)
	defer cancel()

	cl := logger.NewContextLogger(uc.logger)
	users, err := uc.run(runCtx)
	if err != nil {
		metrics.RecordExport("error", time.Since(started).Seconds())
		cl.LogError(ctx, exportOperation, err)
		return nil, err
	}
	metrics.RecordExport("success", time.Since(started).Seconds())
	metrics.ExportedUsers.Observe(float64(len(users)))
	cl.LogDuration(ctx, exportOperation, time.Since(started).Milliseconds())

	return paginate(filterUsers(users, q.Search), q.Page, q.PerPage), nil
}

func (uc *ExportUsers) run(ctx context.Context) ([]domain.DirectoryUser, error) {
	conn, err := uc.api.FindConnection(ctx, uc.cfg.ConnectionStrategy, uc.cfg.ConnectionName)
	if err != nil {
		return nil, err
	}

	job, err := uc.api.CreateUsersExport(ctx, conn.ID, exportFields)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithJobID(ctx, job.ID)
	log := logger.NewContextLogger(uc.logger).WithContext(ctx)
	log.InfoContext(ctx, "export job created", "connection", conn.Name)

	done, err := uc.waitForJob(ctx, job.ID)
	if err != nil {
		log.WarnContext(ctx, "export job did not complete", "error", err)
		return nil, err
	}

	users, err := uc.download(ctx, done.Location)
	if err != nil {
		log.WarnContext(ctx, "export download failed", "error", err)
		return nil, err
	}

	log.InfoContext(ctx, "export downloaded", "users", len(users))
	return users, nil
}

// waitForJob polls the job until it completes, fails, or runs out of attempts.
// The first poll is immediate.
func (uc *ExportUsers) waitForJob(ctx context.Context, jobID string) (*domain.ExportJob, error) {
	poll := func() (*domain.ExportJob, error) {
		job, err := uc.api.GetJob(ctx, jobID)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		switch job.Status {
		case domain.JobStatusCompleted:
			return job, nil
		case domain.JobStatusFailed:
			return nil, backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrExportJobFailed, job.Raw))
		case domain.JobStatusPending, domain.JobStatusProcessing:
			return nil, errJobPending
		default:
			return nil, fmt.Errorf("%w: unrecognized status %q", errJobPending, job.Status)
		}
	}

	ceiling := uc.cfg.PollInterval*time.Duration(uc.cfg.MaxAttempts) + downloadAllowance
	job, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(uc.cfg.PollInterval)),
		backoff.WithMaxTries(uint(uc.cfg.MaxAttempts)), // #nosec G115 -- MaxAttempts is positive after withDefaults
		backoff.WithMaxElapsedTime(ceiling),
		backoff.WithNotify(func(err error, next time.Duration) {
			uc.logger.DebugContext(ctx, "export job not ready", "reason", err, "next_poll", next)
		}),
	)
	switch {
	case err == nil:
		return job, nil
	case errors.Is(err, errJobPending), errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: job %s not completed after %d attempts",
			domain.ErrExportJobTimeout, jobID, uc.cfg.MaxAttempts)
	default:
		return nil, err
	}
}

func (uc *ExportUsers) download(ctx context.Context, location string) ([]domain.DirectoryUser, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: completed job has no location", domain.ErrExportDownload)
	}

	body, err := uc.api.DownloadExport(ctx, location)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, body)
		body.Close()
	}()

	return decodeExport(body)
}

// decodeExport reads a gzip-compressed NDJSON stream of users. Blank lines are skipped
// and any malformed record fails the whole decode.
func decodeExport(r io.Reader) ([]domain.DirectoryUser, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExportParse, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, gz)
		gz.Close()
	}()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxExportLine)

	users := make([]domain.DirectoryUser, 0)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var user domain.DirectoryUser
		if err := json.Unmarshal(raw, &user); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", domain.ErrExportParse, line, err)
		}
		users = append(users, user)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: after line %d: %w", domain.ErrExportParse, line, err)
	}

	return users, nil
}

// filterUsers keeps users whose email, name or nickname contains search, ignoring case.
func filterUsers(users []domain.DirectoryUser, search string) []domain.DirectoryUser {
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return users
	}

	matched := make([]domain.DirectoryUser, 0)
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Email), term) ||
			strings.Contains(strings.ToLower(u.Name), term) ||
			strings.Contains(strings.ToLower(u.Nickname), term) {
			matched = append(matched, u)
		}
	}
	return matched
}

// paginate returns the [page*perPage, page*perPage+perPage) window of users.
func paginate(users []domain.DirectoryUser, page, perPage int) *domain.ExportPage {
	if page < 0 {
		page = 0
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	start := page * perPage
	lo := min(start, len(users))
	hi := min(lo+perPage, len(users))
	window := append(make([]domain.DirectoryUser, 0, hi-lo), users[lo:hi]...)

	return &domain.ExportPage{
		Users:  window,
		Total:  len(users),
		Start:  start,
		Limit:  perPage,
		Length: len(window),
	}
}
