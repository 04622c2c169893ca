package service

import (
	"fmt"
	"time"

	"github.com/opencouncil/cityreport/internal/identity/domain"
	"github.com/opencouncil/cityreport/pkg/clockx"
	"github.com/opencouncil/cityreport/pkg/jwtx"
)

// TokenService issues signed session tokens for verified accounts. Token
// verification lives entirely in pkg/jwtx and the HTTP middleware; this
// service never reads the store.
type TokenService struct {
	Signer jwtx.Signer
	Clock  clockx.Clock

	Issuer   string
	Audience []string
	TTL      time.Duration
}

// Issue signs a session token for the account with its current roles.
func (s *TokenService) Issue(a domain.Account) (string, error) {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = jwtx.DefaultTokenTTL
	}

	claims := jwtx.NewSessionClaims(
		a.ID,
		a.FullName,
		a.Email,
		[]string{a.Role.String()},
		ttl,
		s.Issuer,
		s.Audience,
		s.Clock.Now(),
	)

	token, err := s.Signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}
