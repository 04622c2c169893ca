package store

import (
	"context"
	"errors"
	"time"

	"github.com/opencouncil/cityreport/internal/identity/domain"
)

var (
	ErrNotFound       = errors.New("store: not found")
	ErrDuplicateEmail = errors.New("store: email already registered")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement it. Sub-repositories keep concerns separated and let transactions
// expose the same surface as the plain store.
type Store interface {
	Accounts() Accounts
	OTPChallenges() OTPChallenges

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Multi-step
	// mutations that must be atomic (last-login + challenge issue, secret +
	// enabled flag) go through here.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the underlying database handle.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store. Commit/Rollback are driven by WithTx.
type Tx interface {
	Accounts() Accounts
	OTPChallenges() OTPChallenges
}

type Accounts interface {
	// GetByID returns an account by id.
	GetByID(ctx context.Context, id string) (domain.Account, error)

	// GetByEmail looks up by case-normalized email.
	GetByEmail(ctx context.Context, email string) (domain.Account, error)

	// Create inserts a new account (id is provided by the app via ULID).
	// Returns ErrDuplicateEmail when the email is already registered,
	// case-insensitively.
	Create(ctx context.Context, a domain.Account) error

	// UpdatePasswordHash sets the password hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, accountID, newHash string) error

	// UpdateLastLogin records a successful credential check.
	UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error

	// UpdateMFASecret stores the pending TOTP seed without enabling MFA.
	UpdateMFASecret(ctx context.Context, accountID, secret string) error

	// EnableMFA flips the MFA flag after a confirmed TOTP code.
	EnableMFA(ctx context.Context, accountID string) error

	// DisableMFA clears the secret and the flag in one statement.
	DisableMFA(ctx context.Context, accountID string) error

	// SetRole replaces the account's role. Single statement, so concurrent
	// readers never observe an account without a role.
	SetRole(ctx context.Context, accountID string, role domain.Role) error

	// SetActive toggles the active flag (deactivation, reactivation).
	SetActive(ctx context.Context, accountID string, active bool) error
}

type OTPChallenges interface {
	// Create persists a freshly issued challenge.
	Create(ctx context.Context, c domain.OTPChallenge) error

	// GetLatestActive returns the most recent unused, unexpired challenge
	// for the account and purpose whose attempt counter is below maxAttempts.
	// "Most recent" is by challenge ID (monotonic ULID).
	GetLatestActive(ctx context.Context, accountID string, purpose domain.OTPPurpose, now time.Time, maxAttempts int) (domain.OTPChallenge, error)

	// MarkUsed consumes a challenge. The used flag only ever transitions
	// false→true; marking an already-used challenge is an ErrNotFound.
	MarkUsed(ctx context.Context, challengeID string) error

	// IncrementAttempts bumps the attempt counter after a mismatch.
	IncrementAttempts(ctx context.Context, challengeID string) error

	// DeleteExpired removes challenges past their expiry (housekeeping).
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
