package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencouncil/cityreport/internal/identity/domain"
	"github.com/opencouncil/cityreport/internal/identity/store"
	"github.com/opencouncil/cityreport/pkg/idx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "identity.db")
	s, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func testAccount(email string) domain.Account {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.Account{
		ID:           idx.New().String(),
		Email:        email,
		FullName:     "Jamie Citizen",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$c2FsdHNhbHQ$aGFzaGhhc2g",
		Role:         domain.RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestAccountsCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAccount("jamie@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))

	got, err := s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.Email, got.Email)
	require.Equal(t, domain.RoleUser, got.Role)
	require.True(t, got.Active)
	require.Nil(t, got.MFASecret)
	require.Nil(t, got.LastLoginAt)

	byEmail, err := s.Accounts().GetByEmail(ctx, "jamie@example.com")
	require.NoError(t, err)
	require.Equal(t, a.ID, byEmail.ID)

	_, err = s.Accounts().GetByID(ctx, idx.New().String())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAccountsDuplicateEmailIsCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Accounts().Create(ctx, testAccount("jamie@example.com")))

	dup := testAccount("JAMIE@example.com")
	err := s.Accounts().Create(ctx, dup)
	require.ErrorIs(t, err, store.ErrDuplicateEmail)
}

func TestAccountsMFALifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAccount("jamie@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))

	require.NoError(t, s.Accounts().UpdateMFASecret(ctx, a.ID, "JBSWY3DPEHPK3PXP"))

	got, err := s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MFASecret)
	require.Equal(t, "JBSWY3DPEHPK3PXP", *got.MFASecret)
	require.False(t, got.MFAEnabled)
	require.True(t, got.MFARequired())

	require.NoError(t, s.Accounts().EnableMFA(ctx, a.ID))
	got, err = s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.MFAEnabled)

	require.NoError(t, s.Accounts().DisableMFA(ctx, a.ID))
	got, err = s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, got.MFAEnabled)
	require.Nil(t, got.MFASecret)
	require.False(t, got.MFARequired())
}

func TestAccountsUpdatesTouchMissingRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing := idx.New().String()
	require.ErrorIs(t, s.Accounts().UpdatePasswordHash(ctx, missing, "x"), store.ErrNotFound)
	require.ErrorIs(t, s.Accounts().EnableMFA(ctx, missing), store.ErrNotFound)
	require.ErrorIs(t, s.Accounts().SetRole(ctx, missing, domain.RoleOfficer), store.ErrNotFound)
	require.ErrorIs(t, s.Accounts().SetActive(ctx, missing, false), store.ErrNotFound)
}

func TestAccountsSetRoleAndLastLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAccount("jamie@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))

	require.NoError(t, s.Accounts().SetRole(ctx, a.ID, domain.RoleOfficer))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Accounts().UpdateLastLogin(ctx, a.ID, at))

	got, err := s.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOfficer, got.Role)
	require.NotNil(t, got.LastLoginAt)
	require.WithinDuration(t, at, *got.LastLoginAt, time.Second)
}

func newChallenge(accountID string, at time.Time, ttl time.Duration) domain.OTPChallenge {
	return domain.OTPChallenge{
		ID:        idx.NewAt(at).String(),
		AccountID: accountID,
		Code:      "123456",
		Purpose:   domain.PurposeLoginMFA,
		Channel:   domain.ChannelEmail,
		CreatedAt: at,
		ExpiresAt: at.Add(ttl),
	}
}

func TestOTPChallengesLatestActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAccount("jamie@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))

	now := time.Now().UTC().Truncate(time.Second)

	first := newChallenge(a.ID, now, 2*time.Minute)
	second := newChallenge(a.ID, now, 2*time.Minute)
	second.Code = "654321"
	require.NoError(t, s.OTPChallenges().Create(ctx, first))
	require.NoError(t, s.OTPChallenges().Create(ctx, second))

	got, err := s.OTPChallenges().GetLatestActive(ctx, a.ID, domain.PurposeLoginMFA, now, 5)
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)
	require.Equal(t, "654321", got.Code)

	// Consuming the newest challenge falls back to the older one.
	require.NoError(t, s.OTPChallenges().MarkUsed(ctx, second.ID))
	got, err = s.OTPChallenges().GetLatestActive(ctx, a.ID, domain.PurposeLoginMFA, now, 5)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
}

func TestOTPChallengesExpiryAndAttemptsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAccount("jamie@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))

	now := time.Now().UTC().Truncate(time.Second)
	c := newChallenge(a.ID, now, 2*time.Minute)
	require.NoError(t, s.OTPChallenges().Create(ctx, c))

	_, err := s.OTPChallenges().GetLatestActive(ctx, a.ID, domain.PurposeLoginMFA, now.Add(3*time.Minute), 5)
	require.ErrorIs(t, err, store.ErrNotFound)

	// Purpose mismatch never matches.
	_, err = s.OTPChallenges().GetLatestActive(ctx, a.ID, domain.PurposePasswordReset, now, 5)
	require.ErrorIs(t, err, store.ErrNotFound)

	for range 5 {
		require.NoError(t, s.OTPChallenges().IncrementAttempts(ctx, c.ID))
	}
	_, err = s.OTPChallenges().GetLatestActive(ctx, a.ID, domain.PurposeLoginMFA, now, 5)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOTPChallengesMarkUsedIsSingleShot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAccount("jamie@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))

	now := time.Now().UTC().Truncate(time.Second)
	c := newChallenge(a.ID, now, 2*time.Minute)
	require.NoError(t, s.OTPChallenges().Create(ctx, c))

	require.NoError(t, s.OTPChallenges().MarkUsed(ctx, c.ID))
	require.ErrorIs(t, s.OTPChallenges().MarkUsed(ctx, c.ID), store.ErrNotFound)
}

func TestOTPChallengesDeleteExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAccount("jamie@example.com")
	require.NoError(t, s.Accounts().Create(ctx, a))

	now := time.Now().UTC().Truncate(time.Second)
	expired := newChallenge(a.ID, now.Add(-10*time.Minute), 2*time.Minute)
	live := newChallenge(a.ID, now, 2*time.Minute)
	require.NoError(t, s.OTPChallenges().Create(ctx, expired))
	require.NoError(t, s.OTPChallenges().Create(ctx, live))

	n, err := s.OTPChallenges().DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := s.OTPChallenges().GetLatestActive(ctx, a.ID, domain.PurposeLoginMFA, now, 5)
	require.NoError(t, err)
	require.Equal(t, live.ID, got.ID)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAccount("jamie@example.com")
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().Create(ctx, a); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Accounts().GetByID(ctx, a.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTxCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAccount("jamie@example.com")
	now := time.Now().UTC().Truncate(time.Second)
	c := newChallenge(a.ID, now, 2*time.Minute)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().Create(ctx, a); err != nil {
			return err
		}
		return tx.OTPChallenges().Create(ctx, c)
	})
	require.NoError(t, err)

	got, err := s.OTPChallenges().GetLatestActive(ctx, a.ID, domain.PurposeLoginMFA, now, 5)
	require.NoError(t, err)
	require.Equal(t, c.ID, got.ID)
}
