package csrf

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Middleware applies the double-submit check to state-changing requests.
// Safe methods pass through; so does everything when the guard is disabled.
func (g *Guard) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !g.Enabled {
				return next(c)
			}
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			cookieValue := ""
			if ck, err := c.Request().Cookie(CookieName); err == nil {
				cookieValue = ck.Value
			}
			headerValue := c.Request().Header.Get(HeaderName)

			if err := g.Verify(cookieValue, headerValue); err != nil {
				return echo.NewHTTPError(http.StatusForbidden, err.Error())
			}
			return next(c)
		}
	}
}
