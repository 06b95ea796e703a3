package hash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher abstracts the password hashing scheme so the auth core
// never depends on bcrypt directly.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hashed, password string) bool
}

type Bcrypt struct{}

func (Bcrypt) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (Bcrypt) Verify(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

// NewSecret returns a URL-safe random bearer secret. The plaintext is handed
// to the client exactly once; only Sha256Hex(secret) is ever persisted.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func Sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
