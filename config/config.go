package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"identity-hub/utils/validator"
)

// Config holds the application configuration
type Config struct {
	Port string `env:"PORT" validate:"required,numeric"`

	Auth0Domain       string        `env:"AUTH0_DOMAIN" validate:"required"`
	Auth0BaseURL      string        `validate:"required,url"` // derived from AUTH0_DOMAIN
	Auth0ClientID     string        `env:"AUTH0_CLIENT_ID" validate:"required"`
	Auth0ClientSecret string        `env:"AUTH0_CLIENT_SECRET" validate:"required"`
	Auth0Audience     string        `env:"AUTH0_AUDIENCE" validate:"required"`
	UpstreamTimeout   time.Duration `env:"UPSTREAM_TIMEOUT" validate:"gt=0"`

	SessionSecret string   `env:"PL_JWT_SECRET" validate:"required,min=16"`
	AllowedRoles  []string `env:"PL_ALLOWED_ROLES" validate:"required,min=1,dive,required"`
	AllowedOrigin string   `env:"ALLOWED_ORIGIN" validate:"required"`
	ServiceAPIKey string   `env:"SERVICE_API_KEY"`

	ExportConnectionName     string        `env:"EXPORT_CONNECTION_NAME" validate:"required"`
	ExportConnectionStrategy string        `env:"EXPORT_CONNECTION_STRATEGY" validate:"required"`
	ExportPollInterval       time.Duration `env:"EXPORT_POLL_INTERVAL" validate:"gt=0"`
	ExportMaxAttempts        int           `env:"EXPORT_MAX_ATTEMPTS" validate:"gt=0"`

	RedisURL           string `env:"REDIS_URL" validate:"omitempty,url"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" validate:"gt=0"`
	HSTS               bool   `env:"HSTS_ENABLED"`
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	domain := getEnv("AUTH0_DOMAIN", "")
	baseURL := BaseURL(domain)

	config := &Config{
		Port:                     getEnv("PORT", "8888"),
		Auth0Domain:              domain,
		Auth0BaseURL:             baseURL,
		Auth0ClientID:            getEnv("AUTH0_CLIENT_ID", ""),
		Auth0ClientSecret:        getEnv("AUTH0_CLIENT_SECRET", ""),
		Auth0Audience:            getEnv("AUTH0_AUDIENCE", ""),
		SessionSecret:            getEnv("PL_JWT_SECRET", ""),
		AllowedRoles:             splitList(getEnv("PL_ALLOWED_ROLES", "admin,superadmin")),
		AllowedOrigin:            getEnv("ALLOWED_ORIGIN", "*"),
		ServiceAPIKey:            getEnv("SERVICE_API_KEY", ""),
		ExportConnectionName:     getEnv("EXPORT_CONNECTION_NAME", "Username-Password-Authentication"),
		ExportConnectionStrategy: getEnv("EXPORT_CONNECTION_STRATEGY", "auth0"),
		RedisURL:                 getEnv("REDIS_URL", ""),
		HSTS:                     getEnv("HSTS_ENABLED", "false") == "true",
	}
	if config.Auth0Audience == "" && baseURL != "" {
		config.Auth0Audience = baseURL + "/api/v2/"
	}

	var err error
	if config.UpstreamTimeout, err = durationEnv("UPSTREAM_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if config.ExportPollInterval, err = durationEnv("EXPORT_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if config.ExportMaxAttempts, err = intEnv("EXPORT_MAX_ATTEMPTS", 60); err != nil {
		return nil, err
	}
	if config.RateLimitPerMinute, err = intEnv("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validator.New().Validate(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// BaseURL turns an upstream domain into its HTTPS base URL. A value that already
// carries a scheme is used as is.
func BaseURL(domain string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if domain == "" || strings.Contains(domain, "://") {
		return domain
	}
	return "https://" + domain
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", key, err)
	}
	return n, nil
}

// getEnv retrieves an environment variable or returns a fallback value
func getEnv(key, fallback string) string {
	// Check for _FILE suffix
	if fileValue := os.Getenv(key + "_FILE"); fileValue != "" {
		content, err := os.ReadFile(fileValue)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
