package httpx

import (
	"context"

	"github.com/opencouncil/cityreport/pkg/jwtx"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// Identity is the verified caller extracted from a session token. It is a
// pure product of the token claims; middleware never touches storage.
type Identity struct {
	AccountID string
	FullName  string
	Email     string
	Roles     []string
}

// ContextWithIdentity stores the verified identity for downstream handlers.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFromContext returns the verified identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}

func identityFromClaims(c jwtx.Claims) Identity {
	return Identity{
		AccountID: c.Subject,
		FullName:  c.FullName,
		Email:     c.Email,
		Roles:     c.Roles,
	}
}
