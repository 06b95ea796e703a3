package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
)

const (
	CookieName = "csrf"
	HeaderName = "X-CSRF"
)

var (
	ErrMissingCookie = errors.New("csrf_missing_cookie")
	ErrMissingHeader = errors.New("csrf_missing_header")
	ErrMismatch      = errors.New("csrf_mismatch")
)

// Guard implements the double-submit pattern: the token is delivered in a
// script-readable cookie and must be echoed back in the X-CSRF header.
// It holds no state beyond the enable flag.
type Guard struct {
	Enabled bool
}

func (g *Guard) IssueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Verify checks cookie against header. The order is fixed: missing cookie
// before missing header before mismatch, so clients see deterministic codes.
func (g *Guard) Verify(cookieValue, headerValue string) error {
	if !g.Enabled {
		return nil
	}
	if cookieValue == "" {
		return ErrMissingCookie
	}
	if headerValue == "" {
		return ErrMissingHeader
	}
	if subtle.ConstantTimeCompare([]byte(cookieValue), []byte(headerValue)) != 1 {
		return ErrMismatch
	}
	return nil
}

// Cookie builds the double-submit cookie. HttpOnly stays false on purpose:
// the client script has to read the value to echo it as a header.
func Cookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	}
}
