package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"identity-hub/internal/domain"
)

// Authenticate verifies a console session token and enforces the role allow-list.
type Authenticate struct {
	verifier     domain.SessionVerifier
	allowedRoles []string
	logger       *slog.Logger
}

// NewAuthenticate creates a new Authenticate usecase.
func NewAuthenticate(v domain.SessionVerifier, allowedRoles []string, l *slog.Logger) *Authenticate {
	return &Authenticate{verifier: v, allowedRoles: allowedRoles, logger: l}
}

// Execute returns the verified claims of raw, or an authentication or authorization error.
func (uc *Authenticate) Execute(ctx context.Context, raw string) (*domain.SessionClaims, error) {
	if raw == "" {
		return nil, domain.ErrMissingCredential
	}

	claims, err := uc.verifier.Verify(raw)
	if err != nil {
		uc.logger.DebugContext(ctx, "session token rejected", "error", err)
		return nil, err
	}

	if !claims.HasAnyRole(uc.allowedRoles) {
		uc.logger.WarnContext(ctx, "session role not allowed",
			"user_id", claims.Subject,
			"roles", claims.Roles)
		return nil, fmt.Errorf("%w: roles %v", domain.ErrForbidden, claims.Roles)
	}

	return claims, nil
}
