package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the default session token lifetime.
const DefaultTokenTTL = 8 * time.Hour

// Claims are the session-token claims shared across the platform. Keep
// changes additive so older tokens stay parseable.
type Claims struct {
	jwt.RegisteredClaims

	// FullName is the account's display name.
	FullName string `json:"fullname,omitempty"`

	// Email is the account's normalized email address.
	Email string `json:"email,omitempty"`

	// Roles carries one entry per role assigned to the account
	// (e.g. ["Admin"]). Authorization decisions key off this list.
	Roles []string `json:"roles,omitempty"`
}

// NewSessionClaims builds minimally-correct claims for a session token.
// The jti is a fresh UUID so individual tokens can be told apart in logs.
func NewSessionClaims(
	subject, fullName, email string,
	roles []string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		FullName: fullName,
		Email:    email,
		Roles:    roles,
	}
}

// HasRole reports whether the claims carry the given role.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// ValidateIssuer checks the issuer claim against the expected value.
// An empty expected value enforces nothing.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks that at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateExpiryAt checks exp and nbf against the supplied time. Callers
// pass their own clock so tests can simulate expiry.
func (c *Claims) ValidateExpiryAt(now time.Time) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
