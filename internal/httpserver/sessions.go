package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dkrasnov/tenantauth/internal/csrf"
	"github.com/dkrasnov/tenantauth/internal/middleware"
)

func (h *AuthHTTP) Sessions(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get(middleware.ContextUserID).(uuid.UUID)

	currentSecret := ""
	if ck, err := c.Cookie(RefreshCookieName); err == nil {
		currentSecret = ck.Value
	}

	sessions, err := h.Svc.Sessions(ctx, userID, currentSecret)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": sessions})
}

func (h *AuthHTTP) RevokeSession(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get(middleware.ContextUserID).(uuid.UUID)

	// An unparseable id is just an unknown session; revoking an unknown
	// session reports success so the endpoint leaks nothing.
	sessionID, err := uuid.Parse(c.Param("id"))
	if err == nil {
		if err := h.Svc.RevokeSession(ctx, userID, sessionID); err != nil {
			return respondError(c, err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

type CsrfHTTP struct {
	Guard              *csrf.Guard
	ForceSecureCookies bool
}

// Token issues the double-submit pair: the value goes into a script-readable
// cookie and comes back in the response body for the X-CSRF header.
func (h *CsrfHTTP) Token(c echo.Context) error {
	token, err := h.Guard.IssueToken()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create CSRF token")
	}
	c.SetCookie(csrf.Cookie(token, secureCookies(c, h.ForceSecureCookies)))
	return c.JSON(http.StatusOK, echo.Map{"token": token, "header": csrf.HeaderName})
}
