package httpserver

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dkrasnov/tenantauth/internal/logging"
	"github.com/dkrasnov/tenantauth/internal/middleware"
	"github.com/dkrasnov/tenantauth/internal/service"
)

type AuthHTTP struct {
	Svc *service.AuthService

	RefreshBodyFallback bool
	ForceSecureCookies  bool
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Tenant   string `json:"tenant"`
}

type sessionResponse struct {
	AccessToken     string               `json:"accessToken"`
	AccessExpiresAt time.Time            `json:"accessExpiresAt"`
	SessionID       uuid.UUID            `json:"sessionId"`
	TenantToken     *service.TenantToken `json:"tenantToken,omitempty"`
}

func (h *AuthHTTP) Signup(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_signup")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("signup_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	session, err := h.Svc.Signup(ctx, req.Email, req.Password, req.Tenant)
	if err != nil {
		return respondError(c, err)
	}
	return h.respondSession(c, http.StatusOK, session)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	session, err := h.Svc.Login(ctx, req.Email, req.Password, req.Tenant)
	if err != nil {
		return respondError(c, err)
	}
	return h.respondSession(c, http.StatusOK, session)
}

func (h *AuthHTTP) MagicConsume(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		Token  string `json:"token"`
		Tenant string `json:"tenant"`
	}
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	session, err := h.Svc.ConsumeMagicLink(ctx, req.Token, req.Tenant)
	if err != nil {
		return respondError(c, err)
	}
	return h.respondSession(c, http.StatusOK, session)
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	secret := h.refreshSecretFrom(c)
	if secret == "" {
		return respondError(c, service.ErrMissingRefresh)
	}

	session, err := h.Svc.Rotate(ctx, secret, c.RealIP())
	if err != nil {
		return respondError(c, err)
	}
	return h.respondSession(c, http.StatusOK, session)
}

func (h *AuthHTTP) SelectTenant(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		Tenant       string `json:"tenant"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.Bind(&req); err != nil || req.Tenant == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant is required")
	}

	secret := ""
	if ck, err := c.Cookie(RefreshCookieName); err == nil {
		secret = ck.Value
	}
	if secret == "" {
		secret = req.RefreshToken
	}
	if secret == "" {
		return respondError(c, service.ErrMissingRefresh)
	}

	session, err := h.Svc.SelectTenant(ctx, secret, req.Tenant, c.RealIP())
	if err != nil {
		return respondError(c, err)
	}
	return h.respondSession(c, http.StatusOK, session)
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	secure := secureCookies(c, h.ForceSecureCookies)

	if ck, err := c.Cookie(RefreshCookieName); err == nil && ck.Value != "" {
		if err := h.Svc.LogoutSingle(ctx, ck.Value); err != nil {
			c.SetCookie(deleteRefreshCookie(secure))
			return respondError(c, err)
		}
	}
	c.SetCookie(deleteRefreshCookie(secure))
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHTTP) LogoutAll(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get(middleware.ContextUserID).(uuid.UUID)

	count, err := h.Svc.LogoutAll(ctx, userID)
	if err != nil {
		return respondError(c, err)
	}
	c.SetCookie(deleteRefreshCookie(secureCookies(c, h.ForceSecureCookies)))
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out everywhere", "revoked": count})
}

// refreshSecretFrom prefers the rt cookie; the body field is honored only
// while the transitional fallback flag stays on.
func (h *AuthHTTP) refreshSecretFrom(c echo.Context) string {
	if ck, err := c.Cookie(RefreshCookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	if !h.RefreshBodyFallback {
		return ""
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.Bind(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

func (h *AuthHTTP) respondSession(c echo.Context, status int, session *service.Session) error {
	secure := secureCookies(c, h.ForceSecureCookies)
	c.SetCookie(refreshCookie(session.RefreshSecret, session.RefreshExp, secure))
	return c.JSON(status, sessionResponse{
		AccessToken:     session.AccessToken,
		AccessExpiresAt: session.AccessExp,
		SessionID:       session.RefreshID,
		TenantToken:     session.TenantToken,
	})
}

func respondError(c echo.Context, err error) error {
	var limited *service.RateLimitedError
	if errors.As(err, &limited) {
		seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
		return c.JSON(service.ErrRateLimited.Status, echo.Map{
			"error":             service.ErrRateLimited.Code,
			"retryAfterSeconds": seconds,
		})
	}

	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		return c.JSON(svcErr.Status, echo.Map{"error": svcErr.Code})
	}

	logging.FromContext(c.Request().Context()).Error("internal error", "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
}
