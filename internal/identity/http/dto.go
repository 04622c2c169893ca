package http

import (
	"encoding/base64"
	"time"

	"github.com/opencouncil/cityreport/internal/identity/domain"
)

type registerRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyEmailOTPRequest struct {
	Email   string `json:"email"`
	OtpCode string `json:"otpCode"`
}

type totpCodeRequest struct {
	OtpCode string `json:"otpCode"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

// userDTO mirrors the account shape clients already consume. Field names are
// part of the public contract; change with care.
type userDTO struct {
	ID            string     `json:"id"`
	FullName      string     `json:"fullName"`
	Email         string     `json:"email"`
	IsActive      bool       `json:"isActive"`
	MfaEnabled    bool       `json:"mfaEnabled"`
	Roles         []string   `json:"roles"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLoginDate *time.Time `json:"lastLoginDate"`
}

func userFromAccount(a domain.Account) *userDTO {
	return &userDTO{
		ID:            a.ID,
		FullName:      a.FullName,
		Email:         a.Email,
		IsActive:      a.Active,
		MfaEnabled:    a.MFAEnabled,
		Roles:         []string{a.Role.String()},
		CreatedAt:     a.CreatedAt,
		LastLoginDate: a.LastLoginAt,
	}
}

type registerResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	User    *userDTO `json:"user,omitempty"`
}

// loginResponse is shared by login and the MFA verification endpoints. Token
// is a pointer so a pending MFA step serializes as token:null.
type loginResponse struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	Token       *string  `json:"token"`
	RequiresMFA bool     `json:"requiresMFA"`
	User        *userDTO `json:"user,omitempty"`
}

type totpSetupData struct {
	SecretKey  string `json:"secretKey"`
	OtpAuthURI string `json:"otpAuthUri"`
	QRCode     string `json:"qrCode"` // base64 PNG, data-URI ready
}

func totpSetupFromEnrollment(e domain.TOTPEnrollment) totpSetupData {
	return totpSetupData{
		SecretKey:  e.Secret,
		OtpAuthURI: e.OtpAuthURI,
		QRCode:     base64.StdEncoding.EncodeToString(e.QRCodePNG),
	}
}
