package domain

import "time"

// OTPPurpose tags what an email code is allowed to prove. Verification only
// considers challenges with a matching purpose.
type OTPPurpose string

const (
	PurposeLoginMFA          OTPPurpose = "LoginMFA"
	PurposePasswordReset     OTPPurpose = "PasswordReset"
	PurposeEmailConfirmation OTPPurpose = "EmailConfirmation"
)

// OTPChannel records how a challenge is delivered.
type OTPChannel string

const (
	ChannelEmail OTPChannel = "Email"
	ChannelTOTP  OTPChannel = "TOTP"
)

// OTPChallenge is a single-use emailed code bound to one account. The ID is
// a monotonic ULID, so ordering by ID gives a stable "most recent" even when
// two challenges are created in the same millisecond.
type OTPChallenge struct {
	ID        string
	AccountID string
	Code      string
	Purpose   OTPPurpose
	Channel   OTPChannel
	Attempts  int
	Used      bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the challenge is past its expiry at the given time.
// An expired challenge is dead regardless of its used flag.
func (c OTPChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
