package httpx

import (
	"net/http"
	"slices"
	"strings"
)

// RequireAnyRole lets the request through if the verified identity holds at
// least one of the listed roles. An empty list means any authenticated
// caller. Runs after AuthnMiddleware; a request with no identity is treated
// as unauthenticated, not forbidden.
func RequireAnyRole(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeUnauthenticated(w, "missing identity")
				return
			}

			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			for _, role := range id.Roles {
				if slices.Contains(required, role) {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeForbidden(w, required...)
		})
	}
}

func writeForbidden(w http.ResponseWriter, required ...string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	WriteFailure(w, http.StatusForbidden, "You do not have permission to perform this action.")
}
