package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"net/http"
	"strings"

	"github.com/opencouncil/cityreport/internal/identity/service"
	"github.com/opencouncil/cityreport/internal/identity/store"
	"github.com/opencouncil/cityreport/pkg/httpx"
	"github.com/opencouncil/cityreport/pkg/slogx"
)

const minPasswordLength = 8

// AuthHandler serves the /api/auth endpoint group.
type AuthHandler struct {
	Auth *service.AuthService
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.WriteFailure(w, http.StatusBadRequest, "Invalid request body.")
		return false
	}
	return true
}

func validEmail(email string) bool {
	_, err := netmail.ParseAddress(strings.TrimSpace(email))
	return err == nil
}

// writeServiceError maps taxonomy errors onto structured responses. Anything
// outside the taxonomy is logged in full and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteFailure(w, http.StatusUnauthorized, "Invalid credentials.")
	case errors.Is(err, service.ErrAccountDeactivated):
		httpx.WriteFailure(w, http.StatusUnauthorized, "Account is deactivated.")
	case errors.Is(err, service.ErrInvalidOrExpiredOTP):
		httpx.WriteFailure(w, http.StatusUnauthorized, "Invalid or expired OTP.")
	case errors.Is(err, service.ErrInvalidTOTPCode):
		httpx.WriteFailure(w, http.StatusBadRequest, "Invalid TOTP code.")
	case errors.Is(err, service.ErrDuplicateEmail):
		httpx.WriteFailure(w, http.StatusBadRequest, "Email is already registered.")
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteFailure(w, http.StatusNotFound, "User not found.")
	default:
		slogx.FromContext(r.Context()).Error("request failed",
			slog.String("error", err.Error()))
		httpx.WriteInternalError(w)
	}
}

// identityOr401 returns the verified identity or answers 401. The authn
// middleware normally guarantees presence; this guards miswired routes.
func identityOr401(w http.ResponseWriter, r *http.Request) (httpx.Identity, bool) {
	id, ok := httpx.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteFailure(w, http.StatusUnauthorized, "Authentication required.")
	}
	return id, ok
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	switch {
	case strings.TrimSpace(req.FullName) == "":
		httpx.WriteFailure(w, http.StatusBadRequest, "Full name is required.")
		return
	case !validEmail(req.Email):
		httpx.WriteFailure(w, http.StatusBadRequest, "A valid email address is required.")
		return
	case len(req.Password) < minPasswordLength:
		httpx.WriteFailure(w, http.StatusBadRequest,
			fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
		return
	}

	account, err := h.Auth.Register(r.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, registerResponse{
		Success: true,
		Message: "User registered successfully.",
		User:    userFromAccount(account),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteFailure(w, http.StatusBadRequest, "Email and password are required.")
		return
	}

	res, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if res.MFAPending {
		httpx.WriteJSON(w, http.StatusOK, loginResponse{
			Success:     true,
			Message:     "An OTP has been sent to your email.",
			RequiresMFA: true,
			User:        userFromAccount(res.Account),
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Message: "Login successful.",
		Token:   &res.Token,
		User:    userFromAccount(res.Account),
	})
}

func (h *AuthHandler) VerifyEmailOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.OtpCode == "" {
		httpx.WriteFailure(w, http.StatusBadRequest, "Email and OTP code are required.")
		return
	}

	res, err := h.Auth.VerifyMFA(r.Context(), req.Email, req.OtpCode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Message: "Login successful.",
		Token:   &res.Token,
		User:    userFromAccount(res.Account),
	})
}

func (h *AuthHandler) SetupTOTP(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOr401(w, r)
	if !ok {
		return
	}

	enrollment, err := h.Auth.SetupTOTP(r.Context(), id.AccountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{
		Success: true,
		Data:    totpSetupFromEnrollment(enrollment),
	})
}

func (h *AuthHandler) VerifyEnableTOTP(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOr401(w, r)
	if !ok {
		return
	}

	var req totpCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OtpCode == "" {
		httpx.WriteFailure(w, http.StatusBadRequest, "OTP code is required.")
		return
	}

	res, err := h.Auth.ConfirmTOTP(r.Context(), id.AccountID, req.OtpCode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Message: "TOTP has been enabled successfully.",
		Token:   &res.Token,
		User:    userFromAccount(res.Account),
	})
}

func (h *AuthHandler) DisableTOTP(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOr401(w, r)
	if !ok {
		return
	}

	if err := h.Auth.DisableTOTP(r.Context(), id.AccountID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{
		Success: true,
		Message: "TOTP has been disabled.",
	})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOr401(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || len(req.NewPassword) < minPasswordLength {
		httpx.WriteFailure(w, http.StatusBadRequest,
			fmt.Sprintf("New password must be at least %d characters.", minPasswordLength))
		return
	}

	if err := h.Auth.ChangePassword(r.Context(), id.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.WriteFailure(w, http.StatusBadRequest, "Current password is incorrect.")
			return
		}
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{
		Success: true,
		Message: "Password changed successfully.",
	})
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOr401(w, r)
	if !ok {
		return
	}

	account, err := h.Auth.Profile(r.Context(), id.AccountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{
		Success: true,
		Data:    userFromAccount(account),
	})
}

// TestAuth echoes the verified identity, useful for client integration
// checks and smoke tests.
func (h *AuthHandler) TestAuth(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOr401(w, r)
	if !ok {
		return
	}

	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{
		Success: true,
		Data: map[string]any{
			"accountId": id.AccountID,
			"fullName":  id.FullName,
			"email":     id.Email,
			"roles":     id.Roles,
		},
	})
}
