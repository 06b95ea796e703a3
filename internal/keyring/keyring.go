package keyring

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoKeys = errors.New("keyring: no signing keys configured")

// Ring is an ordered list of symmetric keys. The key at position 0 signs new
// tokens; every position is tried during verification so operators can
// prepend a fresh key and retire the old one after outstanding tokens expire.
type Ring struct {
	keys [][]byte
}

func New(keys [][]byte) (*Ring, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	for i, k := range keys {
		if len(k) == 0 {
			return nil, fmt.Errorf("keyring: key %d is empty", i)
		}
	}
	return &Ring{keys: keys}, nil
}

func (r *Ring) Signing() []byte {
	return r.keys[0]
}

func (r *Ring) All() [][]byte {
	return r.keys
}

// VerifyAllSigningKeys signs and parses a throwaway token with each key in
// the ring. It is a startup self-check: a key that cannot round-trip must
// abort boot instead of serving unverifiable tokens.
func (r *Ring) VerifyAllSigningKeys() error {
	claims := jwt.RegisteredClaims{
		Subject:   "startup-self-check",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	for i, key := range r.keys {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		if err != nil {
			return fmt.Errorf("keyring: signing with key %d: %w", i, err)
		}
		parsed, err := jwt.Parse(signed, func(t *jwt.Token) (any, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, errors.New("unexpected sign method")
			}
			return key, nil
		})
		if err != nil || !parsed.Valid {
			return fmt.Errorf("keyring: verifying with key %d: %w", i, err)
		}
	}
	return nil
}
