package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkrasnov/tenantauth/internal/keyring"
)

var (
	ErrSignatureInvalid         = errors.New("token signature invalid")
	ErrExpired                  = errors.New("token expired")
	ErrIssuerOrAudienceMismatch = errors.New("token issuer or audience mismatch")
)

type Issuer struct {
	Ring      *keyring.Ring
	Issuer    string
	Audience  string
	AccessTTL time.Duration

	// Now is swappable for tests; nil means time.Now.
	Now func() time.Time
}

func (i *Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

func (i *Issuer) IssueNeutral(userID string, tokenVersion int) (string, time.Time, error) {
	exp := i.now().Add(i.AccessTTL)
	claims := AccessClaims{
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.Issuer,
			Audience:  jwt.ClaimStrings{i.Audience},
			IssuedAt:  jwt.NewNumericDate(i.now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Ring.Signing())
	return signed, exp, err
}

func (i *Issuer) IssueTenant(userID, tenantID, tenantSlug string, roles int64, tokenVersion int) (string, time.Time, error) {
	exp := i.now().Add(i.AccessTTL)
	claims := AccessClaims{
		TokenVersion: tokenVersion,
		TenantID:     tenantID,
		TenantSlug:   tenantSlug,
		Roles:        roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.Issuer,
			Audience:  jwt.ClaimStrings{i.Audience},
			IssuedAt:  jwt.NewNumericDate(i.now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Ring.Signing())
	return signed, exp, err
}

// Validate tries every key in the ring and accepts the first one whose
// signature matches, so tokens signed by a retired-but-retained key stay
// valid through a key rotation overlap.
func (i *Issuer) Validate(tokenStr string) (*AccessClaims, error) {
	for _, key := range i.Ring.All() {
		key := key
		var claims AccessClaims
		tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, errors.New("unexpected sign method")
			}
			return key, nil
		},
			jwt.WithIssuer(i.Issuer),
			jwt.WithAudience(i.Audience),
			jwt.WithTimeFunc(i.now),
		)
		if err == nil && tkn.Valid {
			return &claims, nil
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			continue
		}
		return nil, mapValidationError(err)
	}
	return nil, ErrSignatureInvalid
}

func mapValidationError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrIssuerOrAudienceMismatch
	default:
		return ErrSignatureInvalid
	}
}
