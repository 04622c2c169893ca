package httpx

import (
	"net/http"
	"strings"

	"github.com/opencouncil/cityreport/pkg/clockx"
	"github.com/opencouncil/cityreport/pkg/jwtx"
	"github.com/opencouncil/cityreport/pkg/slogx"
)

// AuthnMiddleware verifies the bearer token and injects the caller identity
// into the request context. Missing, malformed, badly signed, and expired
// tokens all produce 401; no distinction leaks to the client.
func AuthnMiddleware(v jwtx.Verifier, clk clockx.Clock) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				writeUnauthenticated(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := v.Verify(raw)
			if err != nil {
				log.Warn("token verification failed", "err", err)
				writeUnauthenticated(w, "invalid token")
				return
			}

			if err := claims.ValidateExpiryAt(clk.Now()); err != nil {
				writeUnauthenticated(w, "token expired")
				return
			}

			ctx = ContextWithIdentity(ctx, identityFromClaims(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750 bearer error header plus the platform's JSON failure body.
func writeUnauthenticated(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteFailure(w, http.StatusUnauthorized, "Authentication required.")
}
