package token

import (
	"fmt"
	"time"

	"identity-hub/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims is the wire form of a console session token.
type sessionClaims struct {
	Email  string   `json:"email"`
	OrgID  string   `json:"org_id,omitempty"`
	Roles  []string `json:"roles"`
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// SessionConfig holds session token signing configuration.
type SessionConfig struct {
	Secret string
	TTL    time.Duration
}

// SessionIssuer signs session tokens. Used by the pl-token CLI and tests.
type SessionIssuer struct {
	cfg SessionConfig
}

// NewSessionIssuer creates a new session issuer.
func NewSessionIssuer(cfg SessionConfig) *SessionIssuer {
	return &SessionIssuer{cfg: cfg}
}

// Issue generates a signed HS256 session token for the given claims.
// IssuedAt and ExpiresAt are derived from the current time and the configured TTL.
func (i *SessionIssuer) Issue(c domain.SessionClaims) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Email:  c.Email,
		OrgID:  c.OrgID,
		Roles:  c.Roles,
		Scopes: c.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.cfg.Secret))
}

// SessionVerifier validates session tokens with a shared HMAC secret.
// Implements domain.SessionVerifier.
type SessionVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewSessionVerifier creates a verifier accepting HS256 tokens signed with secret.
func NewSessionVerifier(secret string) *SessionVerifier {
	return &SessionVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Verify checks signature, algorithm, expiry and issued-at, and returns the claims.
func (v *SessionVerifier) Verify(raw string) (*domain.SessionClaims, error) {
	if raw == "" {
		return nil, domain.ErrMissingCredential
	}

	claims := &sessionClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidCredential, err)
	}

	out := &domain.SessionClaims{
		Subject: claims.Subject,
		Email:   claims.Email,
		OrgID:   claims.OrgID,
		Roles:   claims.Roles,
		Scopes:  claims.Scopes,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
