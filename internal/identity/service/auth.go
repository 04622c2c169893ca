package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opencouncil/cityreport/internal/identity/audit"
	"github.com/opencouncil/cityreport/internal/identity/domain"
	"github.com/opencouncil/cityreport/internal/identity/mail"
	"github.com/opencouncil/cityreport/internal/identity/store"
	"github.com/opencouncil/cityreport/pkg/clockx"
	"github.com/opencouncil/cityreport/pkg/cryptox"
	"github.com/opencouncil/cityreport/pkg/idx"
	"github.com/opencouncil/cityreport/pkg/slogx"
)

var (
	// ErrInvalidCredentials covers unknown email and wrong password with one
	// message so responses cannot be used to probe which emails exist.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrAccountDeactivated is deliberately distinct from
	// ErrInvalidCredentials, matching the platform's existing behavior.
	ErrAccountDeactivated = errors.New("account_deactivated")

	// ErrDuplicateEmail rejects registration with an email already in use.
	ErrDuplicateEmail = errors.New("duplicate_email")
)

const mailDispatchTimeout = 15 * time.Second

// LoginResult is the outcome of a credential or MFA check.
type LoginResult struct {
	Account    domain.Account
	Token      string
	MFAPending bool
}

// AuthService orchestrates registration, the two-step login flow, MFA
// management, and account mutations. It owns no crypto or persistence of its
// own; everything is delegated to the collaborators below.
type AuthService struct {
	Store  store.Store
	Tokens *TokenService
	OTP    *OTPService
	MFA    *MFAService
	Mailer mail.Sender
	Audit  audit.Recorder
	Clock  clockx.Clock
}

// NormalizeEmail lower-cases and trims an address. All lookups and writes go
// through this so the unique index sees one canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new active account with the default role.
func (s *AuthService) Register(ctx context.Context, fullName, email, password string) (domain.Account, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.Clock.Now()
	account := domain.Account{
		ID:           idx.NewAt(now).String(),
		Email:        NormalizeEmail(email),
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
		Role:         domain.DefaultRole,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Accounts().Create(ctx, account); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.Account{}, ErrDuplicateEmail
		}
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}

	s.Audit.Record(ctx, audit.EventRegistered, account.ID,
		slog.String("email", account.Email))
	return account, nil
}

// Login checks the password and either issues a token immediately or, when
// the account requires MFA, issues an emailed challenge and reports that a
// second step is pending. The last-login update and the challenge insert
// commit in one transaction.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	account, err := s.Store.Accounts().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("load account: %w", err)
	}

	// The deactivated answer takes precedence over the password check,
	// matching the platform's existing behavior.
	if !account.Active {
		s.Audit.Record(ctx, audit.EventLoginDenied, account.ID,
			slog.String("reason", "deactivated"))
		return LoginResult{}, ErrAccountDeactivated
	}

	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			s.Audit.Record(ctx, audit.EventLoginFailed, account.ID)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("verify password: %w", err)
	}

	now := s.Clock.Now()
	var challenge domain.OTPChallenge

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().UpdateLastLogin(ctx, account.ID, now); err != nil {
			return fmt.Errorf("update last login: %w", err)
		}
		if !account.MFARequired() {
			return nil
		}
		var err error
		challenge, err = s.OTP.Issue(ctx, tx.OTPChallenges(), account.ID, domain.PurposeLoginMFA)
		return err
	})
	if err != nil {
		return LoginResult{}, err
	}
	account.LastLoginAt = &now

	if account.MFARequired() {
		s.dispatchOTP(ctx, account, challenge)
		s.Audit.Record(ctx, audit.EventOTPIssued, account.ID,
			slog.String("purpose", string(domain.PurposeLoginMFA)))
		return LoginResult{Account: account, MFAPending: true}, nil
	}

	token, err := s.Tokens.Issue(account)
	if err != nil {
		return LoginResult{}, err
	}

	s.Audit.Record(ctx, audit.EventLoginSucceeded, account.ID)
	return LoginResult{Account: account, Token: token}, nil
}

// dispatchOTP sends the challenge email without blocking the response. The
// challenge is already committed, so a failed delivery leaves a usable code
// path open: the client requests a fresh code by logging in again.
func (s *AuthService) dispatchOTP(ctx context.Context, account domain.Account, challenge domain.OTPChallenge) {
	log := slogx.FromContext(ctx)
	msg := mail.OTPMessage(account.Email, account.FullName, challenge.Code, s.OTP.ttl())

	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailDispatchTimeout)
		defer cancel()

		if err := s.Mailer.Send(sendCtx, msg); err != nil {
			log.Error("otp email delivery failed",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()))
		}
	}()
}

// VerifyMFA completes the second login step. An emailed code is tried first;
// when the account has a confirmed authenticator enrollment, a current TOTP
// code is accepted as well. Every rejection looks the same to the caller.
func (s *AuthService) VerifyMFA(ctx context.Context, email, code string) (LoginResult, error) {
	account, err := s.Store.Accounts().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidOrExpiredOTP
		}
		return LoginResult{}, fmt.Errorf("load account: %w", err)
	}

	if !account.Active {
		return LoginResult{}, ErrAccountDeactivated
	}

	if err := s.OTP.Verify(ctx, account.ID, domain.PurposeLoginMFA, code); err != nil {
		if !errors.Is(err, ErrInvalidOrExpiredOTP) {
			return LoginResult{}, err
		}
		// Emailed code did not match; fall back to the authenticator app
		// for accounts that completed TOTP enrollment.
		if !account.MFAEnabled || s.MFA.VerifyCode(account, code) != nil {
			s.Audit.Record(ctx, audit.EventOTPRejected, account.ID)
			return LoginResult{}, ErrInvalidOrExpiredOTP
		}
	}

	token, err := s.Tokens.Issue(account)
	if err != nil {
		return LoginResult{}, err
	}

	s.Audit.Record(ctx, audit.EventOTPVerified, account.ID)
	s.Audit.Record(ctx, audit.EventLoginSucceeded, account.ID)
	return LoginResult{Account: account, Token: token}, nil
}

// SetupTOTP starts authenticator enrollment for an authenticated account.
func (s *AuthService) SetupTOTP(ctx context.Context, accountID string) (domain.TOTPEnrollment, error) {
	account, err := s.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return domain.TOTPEnrollment{}, err
	}

	enrollment, err := s.MFA.Enroll(ctx, account)
	if err != nil {
		return domain.TOTPEnrollment{}, err
	}

	s.Audit.Record(ctx, audit.EventTOTPEnrolled, account.ID)
	return enrollment, nil
}

// ConfirmTOTP turns MFA on after the user proves possession of the enrolled
// seed, and re-issues a fresh token for the session.
func (s *AuthService) ConfirmTOTP(ctx context.Context, accountID, code string) (LoginResult, error) {
	account, err := s.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.MFA.ConfirmAndEnable(ctx, account, code); err != nil {
		return LoginResult{}, err
	}
	account.MFAEnabled = true

	token, err := s.Tokens.Issue(account)
	if err != nil {
		return LoginResult{}, err
	}

	s.Audit.Record(ctx, audit.EventTOTPEnabled, account.ID)
	return LoginResult{Account: account, Token: token}, nil
}

// DisableTOTP clears the enrollment. Safe to call when MFA is already off.
func (s *AuthService) DisableTOTP(ctx context.Context, accountID string) error {
	if err := s.MFA.Disable(ctx, accountID); err != nil {
		return err
	}

	s.Audit.Record(ctx, audit.EventTOTPDisabled, accountID)
	return nil
}

// ChangePassword swaps the hash after re-checking the current password.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := s.Store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	if err := cryptox.VerifyPassword(currentPassword, account.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("verify password: %w", err)
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.Store.Accounts().UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.Audit.Record(ctx, audit.EventPasswordChanged, accountID)
	return nil
}

// Profile returns the account for an authenticated subject.
func (s *AuthService) Profile(ctx context.Context, accountID string) (domain.Account, error) {
	return s.Store.Accounts().GetByID(ctx, accountID)
}

// AssignRole replaces an account's role in a single atomic update.
func (s *AuthService) AssignRole(ctx context.Context, accountID string, role domain.Role) error {
	if err := s.Store.Accounts().SetRole(ctx, accountID, role); err != nil {
		return err
	}

	s.Audit.Record(ctx, audit.EventRoleAssigned, accountID,
		slog.String("role", role.String()))
	return nil
}
