// Package http wires the identity service into its public HTTP surface.
package http

import (
	"log/slog"
	"net/http"

	"github.com/opencouncil/cityreport/internal/identity/domain"
	"github.com/opencouncil/cityreport/internal/identity/service"
	"github.com/opencouncil/cityreport/internal/identity/store"
	"github.com/opencouncil/cityreport/pkg/clockx"
	"github.com/opencouncil/cityreport/pkg/httpx"
	"github.com/opencouncil/cityreport/pkg/jwtx"
	"github.com/opencouncil/cityreport/pkg/slogx"
)

// RouterConfig carries everything the HTTP surface depends on.
type RouterConfig struct {
	Auth     *service.AuthService
	Store    store.Store
	Verifier jwtx.Verifier
	Clock    clockx.Clock
	Log      *slog.Logger
}

// NewRouter builds the full route table with per-route middleware chains.
func NewRouter(cfg RouterConfig) http.Handler {
	auth := &AuthHandler{Auth: cfg.Auth}
	users := &UsersHandler{Auth: cfg.Auth}
	system := &SystemHandler{Store: cfg.Store}

	authn := httpx.AuthnMiddleware(cfg.Verifier, cfg.Clock)
	anyUser := httpx.RequireAnyRole()
	adminOnly := httpx.RequireAnyRole(domain.RoleAdmin.String())

	strictIP := httpx.RateLimitByIP(httpx.StrictLimit)
	moderateAccount := httpx.RateLimitByAccount(httpx.ModerateLimit)

	mux := http.NewServeMux()

	// Anonymous credential endpoints: strict per-IP limits.
	mux.Handle("POST /api/auth/register",
		httpx.Chain(http.HandlerFunc(auth.Register), strictIP))
	mux.Handle("POST /api/auth/login",
		httpx.Chain(http.HandlerFunc(auth.Login), strictIP))
	mux.Handle("POST /api/auth/verify-email-otp",
		httpx.Chain(http.HandlerFunc(auth.VerifyEmailOTP), strictIP))

	// Authenticated self-service endpoints: per-account limits.
	mux.Handle("POST /api/auth/setup-totp",
		httpx.Chain(http.HandlerFunc(auth.SetupTOTP), authn, anyUser, moderateAccount))
	mux.Handle("POST /api/auth/verify-enable-totp",
		httpx.Chain(http.HandlerFunc(auth.VerifyEnableTOTP), authn, anyUser, moderateAccount))
	mux.Handle("POST /api/auth/disable-totp",
		httpx.Chain(http.HandlerFunc(auth.DisableTOTP), authn, anyUser, moderateAccount))
	mux.Handle("POST /api/auth/change-password",
		httpx.Chain(http.HandlerFunc(auth.ChangePassword), authn, anyUser, moderateAccount))
	mux.Handle("GET /api/auth/profile",
		httpx.Chain(http.HandlerFunc(auth.Profile), authn, anyUser))
	mux.Handle("GET /api/auth/test-auth",
		httpx.Chain(http.HandlerFunc(auth.TestAuth), authn, anyUser))

	// Administrative endpoints.
	mux.Handle("PUT /api/users/{id}/role",
		httpx.Chain(http.HandlerFunc(users.AssignRole), authn, adminOnly))

	// Probes stay outside authentication.
	mux.HandleFunc("GET /livez", system.Livez)
	mux.HandleFunc("GET /readyz", system.Readyz)

	return httpx.Chain(mux, slogx.HTTPMiddleware(cfg.Log))
}
