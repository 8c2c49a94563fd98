package cache

import (
	"context"
	"log/slog"
	"time"

	"identity-hub/internal/domain"
	"identity-hub/metrics"

	"golang.org/x/sync/singleflight"
)

// DefaultRefreshMargin is subtracted from the upstream token lifetime before caching.
const DefaultRefreshMargin = 5 * time.Minute

// TokenCache holds the single upstream access token and refreshes it on demand.
// Implements domain.TokenSource.
type TokenCache struct {
	exchanger domain.CredentialExchanger
	store     domain.TokenStore
	margin    time.Duration
	logger    *slog.Logger
	group     singleflight.Group
	now       func() time.Time
}

// NewTokenCache creates a token cache backed by store.
func NewTokenCache(exchanger domain.CredentialExchanger, store domain.TokenStore, logger *slog.Logger) *TokenCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenCache{
		exchanger: exchanger,
		store:     store,
		margin:    DefaultRefreshMargin,
		logger:    logger,
		now:       time.Now,
	}
}

// Token returns the cached token while it is valid, otherwise exchanges credentials for a new one.
// Concurrent refreshes share a single exchange.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if value, ok := c.cached(ctx); ok {
		metrics.TokenCacheHitsTotal.Inc()
		return value, nil
	}

	v, err, shared := c.group.Do("token", func() (any, error) {
		// Another flight may have stored a token while this one waited.
		if value, ok := c.cached(ctx); ok {
			return value, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.logger.DebugContext(ctx, "upstream token refresh shared with concurrent request")
	}
	return v.(string), nil
}

func (c *TokenCache) cached(ctx context.Context) (string, bool) {
	token, found, err := c.store.Load(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "token store read failed, exchanging credentials", "error", err)
		return "", false
	}
	if !found || !token.ValidAt(c.now()) {
		return "", false
	}
	return token.Value, true
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	value, ttl, err := c.exchanger.Exchange(ctx)
	if err != nil {
		metrics.TokenExchangesTotal.WithLabelValues("error").Inc()
		c.logger.ErrorContext(ctx, "upstream token exchange failed", "error", err)
		return "", err
	}
	metrics.TokenExchangesTotal.WithLabelValues("success").Inc()

	token := domain.CachedToken{
		Value:     value,
		ExpiresAt: c.now().Add(ttl - c.margin),
	}
	if err := c.store.Save(ctx, token); err != nil {
		c.logger.WarnContext(ctx, "token store write failed", "error", err)
	}

	c.logger.InfoContext(ctx, "upstream token refreshed",
		"ttl_seconds", int(ttl.Seconds()),
		"expires_at", token.ExpiresAt)
	return value, nil
}
