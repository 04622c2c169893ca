package domain

// TOTPEnrollment is returned when authenticator-app enrollment starts. MFA is
// not enabled until the user confirms a code generated from the secret.
type TOTPEnrollment struct {
	Secret     string // base32 encoded seed, shown once
	OtpAuthURI string // otpauth://totp/... URI for provisioning
	QRCodePNG  []byte // PNG rendering of the URI for direct display
}
