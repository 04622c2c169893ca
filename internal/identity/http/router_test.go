package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/opencouncil/cityreport/internal/identity/audit"
	"github.com/opencouncil/cityreport/internal/identity/domain"
	"github.com/opencouncil/cityreport/internal/identity/mail"
	"github.com/opencouncil/cityreport/internal/identity/service"
	"github.com/opencouncil/cityreport/internal/identity/store"
	"github.com/opencouncil/cityreport/internal/identity/store/drivers/sqlite"
	"github.com/opencouncil/cityreport/pkg/clockx"
	"github.com/opencouncil/cityreport/pkg/jwtx"
	"github.com/opencouncil/cityreport/pkg/slogx"
)

type discardMailer struct{}

func (discardMailer) Send(context.Context, mail.Message) error { return nil }

type fixture struct {
	router http.Handler
	store  store.Store
	clock  *clockx.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	clock := clockx.NewFake(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))

	signer, err := jwtx.NewHS256(
		[]byte("0123456789abcdef0123456789abcdef"),
		"cityreport", []string{"cityreport-api"},
	)
	require.NoError(t, err)

	auth := &service.AuthService{
		Store: s,
		Tokens: &service.TokenService{
			Signer:   signer,
			Clock:    clock,
			Issuer:   "cityreport",
			Audience: []string{"cityreport-api"},
		},
		OTP:    &service.OTPService{Store: s, Clock: clock},
		MFA:    &service.MFAService{Store: s, Clock: clock, Issuer: "CityReport"},
		Mailer: discardMailer{},
		Audit:  audit.Noop{},
		Clock:  clock,
	}

	log := slogx.New(slogx.Config{Service: "identity-test", Level: "error"})
	router := NewRouter(RouterConfig{
		Auth:     auth,
		Store:    s,
		Verifier: signer,
		Clock:    clock,
		Log:      log,
	})

	return &fixture{router: router, store: s, clock: clock}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (f *fixture) register(t *testing.T, email string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"fullName": "Alice Resident",
		"email":    email,
		"password": "Passw0rd!",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (f *fixture) login(t *testing.T, email, password string) map[string]any {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody(t, rec)
}

func (f *fixture) loginToken(t *testing.T, email, password string) string {
	t.Helper()
	body := f.login(t, email, password)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func totpCodeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing full name", map[string]string{"email": "a@example.com", "password": "Passw0rd!"}},
		{"bad email", map[string]string{"fullName": "A", "email": "not-an-email", "password": "Passw0rd!"}},
		{"short password", map[string]string{"fullName": "A", "email": "a@example.com", "password": "short"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/auth/register", "", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody(t, rec)
			require.Equal(t, false, body["success"])
			require.NotEmpty(t, body["message"])
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	rec := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"fullName": "Imposter",
		"email":    "ALICE@example.com",
		"password": "Other1234!",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Email is already registered.", decodeBody(t, rec)["message"])
}

func TestLoginWithoutMFA(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	body := f.login(t, "alice@example.com", "Passw0rd!")
	require.Equal(t, true, body["success"])
	require.Equal(t, false, body["requiresMFA"])
	require.NotEmpty(t, body["token"])

	user := body["user"].(map[string]any)
	require.Equal(t, "alice@example.com", user["email"])
	require.Equal(t, []any{"User"}, user["roles"])
	require.Equal(t, true, user["isActive"])
}

func TestLoginBadCredentials(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	rec := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid credentials.", decodeBody(t, rec)["message"])

	rec = f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid credentials.", decodeBody(t, rec)["message"])
}

func TestLoginDeactivatedAccount(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	account, err := f.store.Accounts().GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, f.store.Accounts().SetActive(context.Background(), account.ID, false))

	rec := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "Passw0rd!",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Account is deactivated.", decodeBody(t, rec)["message"])
}

func TestFullMFAScenario(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	// First login needs no second step.
	token := f.loginToken(t, "alice@example.com", "Passw0rd!")

	// Enroll and enable the authenticator.
	rec := f.do(t, http.MethodPost, "/api/auth/setup-totp", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	secret := data["secretKey"].(string)
	require.NotEmpty(t, secret)
	require.Contains(t, data["otpAuthUri"].(string), "otpauth://totp/")
	require.NotEmpty(t, data["qrCode"])

	rec = f.do(t, http.MethodPost, "/api/auth/verify-enable-totp", token, map[string]string{
		"otpCode": totpCodeAt(t, secret, f.clock.Now()),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, decodeBody(t, rec)["token"])

	// The next login pends on MFA, returns no token, but still carries the
	// user object.
	body := f.login(t, "alice@example.com", "Passw0rd!")
	require.Equal(t, true, body["requiresMFA"])
	require.Nil(t, body["token"])
	pendingUser := body["user"].(map[string]any)
	require.Equal(t, "alice@example.com", pendingUser["email"])

	// A current authenticator code completes the login.
	rec = f.do(t, http.MethodPost, "/api/auth/verify-email-otp", "", map[string]string{
		"email":   "alice@example.com",
		"otpCode": totpCodeAt(t, secret, f.clock.Now()),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, decodeBody(t, rec)["token"])
}

func TestVerifyEmailOTPFlow(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	account, err := f.store.Accounts().GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, f.store.Accounts().UpdateMFASecret(context.Background(), account.ID, "JBSWY3DPEHPK3PXP"))

	body := f.login(t, "alice@example.com", "Passw0rd!")
	require.Equal(t, true, body["requiresMFA"])

	challenge, err := f.store.OTPChallenges().GetLatestActive(
		context.Background(), account.ID, domain.PurposeLoginMFA, f.clock.Now(), service.DefaultOTPMaxAttempts)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/auth/verify-email-otp", "", map[string]string{
		"email":   "alice@example.com",
		"otpCode": challenge.Code,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Replaying the consumed code is rejected.
	rec = f.do(t, http.MethodPost, "/api/auth/verify-email-otp", "", map[string]string{
		"email":   "alice@example.com",
		"otpCode": challenge.Code,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid or expired OTP.", decodeBody(t, rec)["message"])
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	f := newFixture(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/auth/setup-totp"},
		{http.MethodPost, "/api/auth/disable-totp"},
		{http.MethodPost, "/api/auth/change-password"},
		{http.MethodGet, "/api/auth/profile"},
		{http.MethodGet, "/api/auth/test-auth"},
	} {
		rec := f.do(t, route.method, route.path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	token := f.loginToken(t, "alice@example.com", "Passw0rd!")

	f.clock.Advance(9 * time.Hour)

	rec := f.do(t, http.MethodGet, "/api/auth/profile", token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	token := f.loginToken(t, "alice@example.com", "Passw0rd!")

	rec := f.do(t, http.MethodPost, "/api/auth/change-password", token, map[string]string{
		"currentPassword": "nope",
		"newPassword":     "NewPassw0rd!",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Current password is incorrect.", decodeBody(t, rec)["message"])

	rec = f.do(t, http.MethodPost, "/api/auth/change-password", token, map[string]string{
		"currentPassword": "Passw0rd!",
		"newPassword":     "NewPassw0rd!",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	f.loginToken(t, "alice@example.com", "NewPassw0rd!")
}

func TestProfileAndTestAuth(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	token := f.loginToken(t, "alice@example.com", "Passw0rd!")

	rec := f.do(t, http.MethodGet, "/api/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decodeBody(t, rec)["data"].(map[string]any)
	require.Equal(t, "alice@example.com", user["email"])
	require.Equal(t, "Alice Resident", user["fullName"])

	rec = f.do(t, http.MethodGet, "/api/auth/test-auth", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	echo := decodeBody(t, rec)["data"].(map[string]any)
	require.Equal(t, "alice@example.com", echo["email"])
}

func TestAssignRoleAuthorization(t *testing.T) {
	f := newFixture(t)
	f.register(t, "admin@example.com")
	f.register(t, "alice@example.com")
	ctx := context.Background()

	admin, err := f.store.Accounts().GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	require.NoError(t, f.store.Accounts().SetRole(ctx, admin.ID, domain.RoleAdmin))

	alice, err := f.store.Accounts().GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)

	userToken := f.loginToken(t, "alice@example.com", "Passw0rd!")
	adminToken := f.loginToken(t, "admin@example.com", "Passw0rd!")

	path := fmt.Sprintf("/api/users/%s/role", alice.ID)

	// A plain user holds a valid token but lacks the role.
	rec := f.do(t, http.MethodPut, path, userToken, map[string]string{"role": "Officer"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// No token at all is unauthenticated, not forbidden.
	rec = f.do(t, http.MethodPut, path, "", map[string]string{"role": "Officer"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPut, path, adminToken, map[string]string{"role": "Officer"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated, err := f.store.Accounts().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOfficer, updated.Role)

	// Unknown account id.
	rec = f.do(t, http.MethodPut, "/api/users/01K00000000000000000000000/role", adminToken,
		map[string]string{"role": "Officer"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown role name.
	rec = f.do(t, http.MethodPut, path, adminToken, map[string]string{"role": "Overlord"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthProbes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
