package domain

import (
	"slices"
	"time"
)

// SessionClaims is the verified payload of an inbound session token.
type SessionClaims struct {
	Subject   string
	Email     string
	OrgID     string
	Roles     []string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasAnyRole reports whether the claims carry at least one of the allowed roles.
func (c *SessionClaims) HasAnyRole(allowed []string) bool {
	for _, role := range c.Roles {
		if slices.Contains(allowed, role) {
			return true
		}
	}
	return false
}
