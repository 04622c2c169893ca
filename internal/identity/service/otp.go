package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opencouncil/cityreport/internal/identity/domain"
	"github.com/opencouncil/cityreport/internal/identity/store"
	"github.com/opencouncil/cityreport/pkg/clockx"
	"github.com/opencouncil/cityreport/pkg/cryptox"
	"github.com/opencouncil/cityreport/pkg/idx"
)

const (
	// DefaultOTPTTL is how long an emailed code stays valid.
	DefaultOTPTTL = 2 * time.Minute

	// DefaultOTPMaxAttempts is how many mismatches a challenge absorbs
	// before it stops being considered and a fresh code must be requested.
	DefaultOTPMaxAttempts = 5

	otpCodeDigits = 6
)

// ErrInvalidOrExpiredOTP covers every email-code rejection: wrong code,
// expired code, consumed code, locked-out challenge, or no challenge at all.
// Collapsing them keeps the response from leaking challenge state.
var ErrInvalidOrExpiredOTP = errors.New("invalid_or_expired_otp")

// OTPService issues and verifies emailed one-time codes.
type OTPService struct {
	Store store.Store
	Clock clockx.Clock

	TTL         time.Duration
	MaxAttempts int
}

func (s *OTPService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultOTPTTL
}

func (s *OTPService) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultOTPMaxAttempts
}

// Issue mints a fresh 6-digit challenge for the account and persists it via
// the given repository. Callers pass a transaction-scoped repository when the
// challenge must commit atomically with other writes. The code is returned
// for out-of-band delivery only and never travels back to the HTTP client.
func (s *OTPService) Issue(ctx context.Context, challenges store.OTPChallenges, accountID string, purpose domain.OTPPurpose) (domain.OTPChallenge, error) {
	code, err := cryptox.NumericCode(otpCodeDigits)
	if err != nil {
		return domain.OTPChallenge{}, fmt.Errorf("generate otp code: %w", err)
	}

	now := s.Clock.Now()
	challenge := domain.OTPChallenge{
		ID:        idx.NewAt(now).String(),
		AccountID: accountID,
		Code:      code,
		Purpose:   purpose,
		Channel:   domain.ChannelEmail,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl()),
	}

	if err := challenges.Create(ctx, challenge); err != nil {
		return domain.OTPChallenge{}, fmt.Errorf("persist otp challenge: %w", err)
	}
	return challenge, nil
}

// Verify checks a submitted code against the most recent live challenge for
// the account and purpose. On a match the challenge is consumed; a mismatch
// burns one attempt and leaves the challenge in place for retry until the
// attempt limit locks it out.
func (s *OTPService) Verify(ctx context.Context, accountID string, purpose domain.OTPPurpose, submitted string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		challenges := tx.OTPChallenges()

		challenge, err := challenges.GetLatestActive(ctx, accountID, purpose, s.Clock.Now(), s.maxAttempts())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidOrExpiredOTP
			}
			return fmt.Errorf("load otp challenge: %w", err)
		}

		if !cryptox.EqualCodes(submitted, challenge.Code) {
			if err := challenges.IncrementAttempts(ctx, challenge.ID); err != nil {
				return fmt.Errorf("record otp attempt: %w", err)
			}
			return ErrInvalidOrExpiredOTP
		}

		if err := challenges.MarkUsed(ctx, challenge.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Lost the race to a concurrent verify.
				return ErrInvalidOrExpiredOTP
			}
			return fmt.Errorf("consume otp challenge: %w", err)
		}
		if err := challenges.IncrementAttempts(ctx, challenge.ID); err != nil {
			return fmt.Errorf("record otp attempt: %w", err)
		}
		return nil
	})
}
