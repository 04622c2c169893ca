package domain

import "time"

// Account is a registered platform user. Deactivation flips Active; accounts
// are never deleted.
type Account struct {
	ID           string
	Email        string // unique, stored lower-cased
	FullName     string
	PasswordHash string // argon2id encoded
	Role         Role
	Active       bool
	MFAEnabled   bool
	MFASecret    *string // base32 TOTP seed; nil unless enrollment started
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

// MFARequired reports whether a login on this account must complete an OTP
// challenge. An account mid-enrollment (secret stored, not yet confirmed)
// already counts, matching the platform's historical behavior.
func (a Account) MFARequired() bool {
	return a.MFAEnabled || (a.MFASecret != nil && *a.MFASecret != "")
}
