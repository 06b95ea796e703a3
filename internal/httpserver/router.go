package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dkrasnov/tenantauth/internal/csrf"
	"github.com/dkrasnov/tenantauth/internal/middleware"
)

type Deps struct {
	Auth   *AuthHTTP
	Csrf   *CsrfHTTP
	AuthMW *middleware.Auth
	Guard  *csrf.Guard

	SessionsAPIEnabled bool
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	auth := e.Group("/auth")
	auth.Use(d.Guard.Middleware())

	auth.GET("/csrf", d.Csrf.Token)

	auth.POST("/signup", d.Auth.Signup)
	auth.POST("/login", d.Auth.Login)
	auth.POST("/magic/consume", d.Auth.MagicConsume)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/select-tenant", d.Auth.SelectTenant)

	private := auth.Group("")
	private.Use(d.AuthMW.RequireAuth)

	private.POST("/logout", d.Auth.Logout)
	private.POST("/logout/all", d.Auth.LogoutAll)

	// Unregistered routes fall through to echo's 404, which is exactly the
	// contract when the sessions API is flagged off.
	if d.SessionsAPIEnabled {
		private.GET("/sessions", d.Auth.Sessions)
		private.POST("/sessions/:id/revoke", d.Auth.RevokeSession)
	}
}
