package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_VerifyOrdering(t *testing.T) {
	t.Parallel()

	g := &Guard{Enabled: true}

	// Missing cookie is reported first, even when the header is also absent.
	assert.ErrorIs(t, g.Verify("", ""), ErrMissingCookie)
	assert.ErrorIs(t, g.Verify("", "header-only"), ErrMissingCookie)
	assert.ErrorIs(t, g.Verify("cookie-value", ""), ErrMissingHeader)
	assert.ErrorIs(t, g.Verify("cookie-value", "other-value"), ErrMismatch)
	assert.NoError(t, g.Verify("same-value", "same-value"))
}

func TestGuard_DisabledSkipsAllChecks(t *testing.T) {
	t.Parallel()

	g := &Guard{Enabled: false}
	assert.NoError(t, g.Verify("", ""))
}

func TestGuard_IssueToken_Unique(t *testing.T) {
	t.Parallel()

	g := &Guard{Enabled: true}
	a, err := g.IssueToken()
	require.NoError(t, err)
	b, err := g.IssueToken()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestCookie_ReadableByScript(t *testing.T) {
	t.Parallel()

	ck := Cookie("token-value", true)
	assert.Equal(t, CookieName, ck.Name)
	assert.False(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
}

func TestMiddleware_BlocksStateChangingRequests(t *testing.T) {
	t.Parallel()

	g := &Guard{Enabled: true}
	e := echo.New()
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	handler := g.Middleware()(next)

	// GET passes without any token.
	req := httptest.NewRequest(http.MethodGet, "/auth/sessions", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	// POST without the pair is rejected with the cookie error first.
	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	err := handler(e.NewContext(req, httptest.NewRecorder()))
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
	assert.Equal(t, ErrMissingCookie.Error(), httpErr.Message)

	// POST with a matching pair passes.
	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "tok"})
	req.Header.Set(HeaderName, "tok")
	rec = httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
