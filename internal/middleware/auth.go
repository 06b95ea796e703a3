package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dkrasnov/tenantauth/internal/repo"
	"github.com/dkrasnov/tenantauth/internal/service"
	"github.com/dkrasnov/tenantauth/internal/tokens"
	"github.com/dkrasnov/tenantauth/internal/versioncache"
)

const (
	ContextUserID = "user_id"
	ContextClaims = "claims"
)

type Auth struct {
	Issuer   *tokens.Issuer
	Repo     *repo.GormRepo
	Versions *versioncache.Cache
	CacheTTL time.Duration
}

func NewAuth(issuer *tokens.Issuer, r *repo.GormRepo, versions *versioncache.Cache, cacheTTL time.Duration) *Auth {
	return &Auth{Issuer: issuer, Repo: r, Versions: versions, CacheTTL: cacheTTL}
}

// RequireAuth authenticates the Bearer access token and compares its
// embedded token version against the live one (cache first, identity store
// on miss). A stale version means a forced logout happened after issuance;
// the token is rejected no matter how much validity it has left.
func (m *Auth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := m.Issuer.Validate(strings.TrimPrefix(header, prefix))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}
		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}

		version, ok := m.Versions.TryGet(userID)
		if !ok {
			user, err := m.Repo.UserByID(userID)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
				}
				return err
			}
			version = user.TokenVersion
			m.Versions.Set(userID, version, m.CacheTTL)
		}
		if claims.TokenVersion != version {
			return echo.NewHTTPError(http.StatusUnauthorized, service.ErrTokenVersionMismatch.Code)
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextClaims, claims)
		return next(c)
	}
}
