// Package jwtx decodes access-token payloads WITHOUT verifying signatures.
//
// The output is advisory only: it is suitable for UI hints such as "session
// expires in 12 minutes" or pre-filling a tenant name. Authorization decisions
// are always the server's responsibility; nothing in this package may ever
// gate access.
package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed reports a token that is not structurally a JWT.
var ErrMalformed = errors.New("jwtx: malformed token")

// Claims are the access-token claims the identity provider issues. Additive
// changes only, to preserve compatibility with older tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Email of the authenticated identity.
	Email string `json:"email,omitempty"`

	// TenantID the token was scoped to, empty when no tenant is selected.
	TenantID string `json:"tenant_id,omitempty"`

	// Role within the tenant ("owner", "admin", ...).
	Role string `json:"role,omitempty"`

	// MembershipID the credential pair was issued for.
	MembershipID string `json:"membership_id,omitempty"`
}

// Peek decodes the claims of token without any signature verification.
func Peek(token string) (*Claims, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, ErrMalformed
	}
	return &claims, nil
}

// ExpiresIn returns the remaining advisory lifetime of the claims at now.
// Tokens without an exp claim report zero.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	d := c.ExpiresAt.Time.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
