package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum accepted HMAC secret size in bytes.
// Anything shorter than the HS256 block size weakens the MAC.
const MinSecretLength = 32

var (
	ErrSecretTooShort = errors.New("jwtx: signing secret must be at least 32 bytes")
	ErrMalformed      = errors.New("jwtx: malformed token")
	ErrAlgMismatch    = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig     = errors.New("jwtx: invalid signature")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Signer signs session claims with a server-held symmetric secret.
type Signer interface {
	Sign(Claims) (string, error)
}

// Verifier validates a compact JWT and returns the claims if it checks out.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// HS256 signs and verifies tokens with HMAC-SHA256. The zero value is not
// usable; construct with NewHS256.
type HS256 struct {
	secret   []byte
	issuer   string
	audience []string
}

// NewHS256 builds a combined signer/verifier. The same instance serves both
// directions since the key is symmetric.
func NewHS256(secret []byte, issuer string, audience []string) (*HS256, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	return &HS256{secret: secret, issuer: issuer, audience: audience}, nil
}

// Sign produces a compact HS256 JWT for the given claims.
func (h *HS256) Sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses the token, checks the signature, and enforces issuer,
// audience, and expiry. Signature failures and structural problems are
// deliberately collapsed into coarse errors so callers can't distinguish
// why a token was rejected.
func (h *HS256) Verify(raw string) (Claims, error) {
	var claims Claims

	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrAlgMismatch
		}
		return h.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		switch {
		case errors.Is(err, ErrAlgMismatch):
			return Claims{}, ErrAlgMismatch
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		default:
			return Claims{}, ErrMalformed
		}
	}
	if !token.Valid {
		return Claims{}, ErrInvalidSig
	}

	if err := claims.ValidateIssuer(h.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(h.audience); err != nil {
		return Claims{}, err
	}

	return claims, nil
}
