package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"identity-hub/internal/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// CredentialsConfig holds the service credentials for the upstream token endpoint.
type CredentialsConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Audience     string
	Timeout      time.Duration
}

// ClientCredentialsExchanger performs the OAuth2 client-credentials grant.
// Implements domain.CredentialExchanger.
type ClientCredentialsExchanger struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
}

// NewClientCredentialsExchanger creates an exchanger against {BaseURL}/oauth/token.
func NewClientCredentialsExchanger(cfg CredentialsConfig) *ClientCredentialsExchanger {
	return &ClientCredentialsExchanger{
		cfg: clientcredentials.Config{
			ClientID:       cfg.ClientID,
			ClientSecret:   cfg.ClientSecret,
			TokenURL:       strings.TrimRight(cfg.BaseURL, "/") + "/oauth/token",
			EndpointParams: url.Values{"audience": {cfg.Audience}},
			AuthStyle:      oauth2.AuthStyleInParams,
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Exchange returns a fresh access token and its nominal lifetime.
func (e *ClientCredentialsExchanger) Exchange(ctx context.Context) (string, time.Duration, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)

	tok, err := e.cfg.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return "", 0, fmt.Errorf("%w: %s", domain.ErrUpstreamAuth, strings.TrimSpace(string(retrieveErr.Body)))
		}
		return "", 0, fmt.Errorf("%w: %w", domain.ErrUpstreamAuth, err)
	}

	return tok.AccessToken, tokenLifetime(tok), nil
}

// tokenLifetime prefers the raw expires_in value and falls back to the computed expiry.
func tokenLifetime(tok *oauth2.Token) time.Duration {
	if secs, ok := tok.Extra("expires_in").(float64); ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}
	if !tok.Expiry.IsZero() {
		return time.Until(tok.Expiry)
	}
	return 0
}
