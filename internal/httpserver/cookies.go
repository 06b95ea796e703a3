package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const RefreshCookieName = "rt"

// The refresh secret travels only in this cookie, never in a response body.
func refreshCookie(value string, exp time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/auth",
		Expires:  exp,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func deleteRefreshCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/auth",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func secureCookies(c echo.Context, force bool) bool {
	return force || c.Request().TLS != nil || c.Scheme() == "https"
}
