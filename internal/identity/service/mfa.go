package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/opencouncil/cityreport/internal/identity/domain"
	"github.com/opencouncil/cityreport/internal/identity/store"
	"github.com/opencouncil/cityreport/pkg/clockx"
)

const (
	totpSecretSize = 20
	totpPeriod     = 30
	qrCodePixels   = 256
)

// ErrInvalidTOTPCode is returned when a submitted authenticator code does not
// match any step inside the drift window, or when no enrollment exists.
var ErrInvalidTOTPCode = errors.New("invalid_totp_code")

// MFAService manages authenticator-app enrollment. The TOTP seed lives on
// the account; MFA only takes effect once the user proves possession of the
// seed by confirming a generated code.
type MFAService struct {
	Store store.Store
	Clock clockx.Clock

	// Issuer is the label shown in authenticator apps.
	Issuer string
}

func (s *MFAService) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1, // one step either side for clock drift
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Enroll generates a fresh seed for the account and stores it without
// enabling MFA. Re-enrolling replaces any unconfirmed seed.
func (s *MFAService) Enroll(ctx context.Context, account domain.Account) (domain.TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account.Email,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("generate totp secret: %w", err)
	}

	if err := s.Store.Accounts().UpdateMFASecret(ctx, account.ID, key.Secret()); err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("store totp secret: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrCodePixels)
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("render provisioning qr: %w", err)
	}

	return domain.TOTPEnrollment{
		Secret:     key.Secret(),
		OtpAuthURI: key.URL(),
		QRCodePNG:  png,
	}, nil
}

// ConfirmAndEnable checks the submitted code against the stored seed and, on
// a match, flips MFA on. The seed is kept as-is so the user's authenticator
// entry stays valid.
func (s *MFAService) ConfirmAndEnable(ctx context.Context, account domain.Account, submitted string) error {
	if account.MFASecret == nil || *account.MFASecret == "" {
		return ErrInvalidTOTPCode
	}

	ok, err := totp.ValidateCustom(submitted, *account.MFASecret, s.Clock.Now(), s.validateOpts())
	if err != nil || !ok {
		return ErrInvalidTOTPCode
	}

	if err := s.Store.Accounts().EnableMFA(ctx, account.ID); err != nil {
		return fmt.Errorf("enable mfa: %w", err)
	}
	return nil
}

// VerifyCode checks a login-time authenticator code without mutating state.
func (s *MFAService) VerifyCode(account domain.Account, submitted string) error {
	if account.MFASecret == nil || *account.MFASecret == "" {
		return ErrInvalidTOTPCode
	}

	ok, err := totp.ValidateCustom(submitted, *account.MFASecret, s.Clock.Now(), s.validateOpts())
	if err != nil || !ok {
		return ErrInvalidTOTPCode
	}
	return nil
}

// Disable clears the seed and the enabled flag together. Disabling an
// account that never enrolled still succeeds; only an unknown account is an
// error.
func (s *MFAService) Disable(ctx context.Context, accountID string) error {
	if err := s.Store.Accounts().DisableMFA(ctx, accountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("disable mfa: %w", err)
	}
	return nil
}
