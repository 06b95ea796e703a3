package tokens

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkrasnov/tenantauth/internal/keyring"
)

func newTestIssuer(t *testing.T, keys ...[]byte) *Issuer {
	t.Helper()

	if len(keys) == 0 {
		keys = [][]byte{[]byte("test-signing-key")}
	}
	ring, err := keyring.New(keys)
	require.NoError(t, err)

	return &Issuer{
		Ring:      ring,
		Issuer:    "tenantauth-test",
		Audience:  "tenantauth-test",
		AccessTTL: 15 * time.Minute,
	}
}

func TestIssuer_IssueNeutral_RoundTrip(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer(t)
	userID := uuid.NewString()

	token, exp, err := iss.IssueNeutral(userID, 3)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, time.Second)

	claims, err := iss.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Subject)
	assert.Equal(t, 3, claims.TokenVersion)
	assert.False(t, claims.IsTenantScoped())
}

func TestIssuer_IssueTenant_CarriesScope(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer(t)
	userID := uuid.NewString()
	tenantID := uuid.NewString()

	token, _, err := iss.IssueTenant(userID, tenantID, "acme", 42, 1)
	require.NoError(t, err)

	claims, err := iss.Validate(token)
	require.NoError(t, err)
	assert.True(t, claims.IsTenantScoped())
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, "acme", claims.TenantSlug)
	assert.Equal(t, int64(42), claims.Roles)
}

func TestIssuer_Validate_Expired(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer(t)
	issuedAt := time.Now().Add(-time.Hour)
	iss.Now = func() time.Time { return issuedAt }

	token, _, err := iss.IssueNeutral(uuid.NewString(), 1)
	require.NoError(t, err)

	iss.Now = nil
	_, err = iss.Validate(token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestIssuer_Validate_WrongKey(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer(t, []byte("key-one"))
	token, _, err := iss.IssueNeutral(uuid.NewString(), 1)
	require.NoError(t, err)

	other := newTestIssuer(t, []byte("key-two"))
	_, err = other.Validate(token)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestIssuer_Validate_AudienceMismatch(t *testing.T) {
	t.Parallel()

	iss := newTestIssuer(t)
	token, _, err := iss.IssueNeutral(uuid.NewString(), 1)
	require.NoError(t, err)

	iss.Audience = "someone-else"
	_, err = iss.Validate(token)
	assert.ErrorIs(t, err, ErrIssuerOrAudienceMismatch)
}

// A token signed before a key rotation stays valid while the retired key is
// kept in the ring, and dies once the key is removed.
func TestIssuer_Validate_KeyRotationOverlap(t *testing.T) {
	t.Parallel()

	oldIss := newTestIssuer(t, []byte("old-key"))
	token, _, err := oldIss.IssueNeutral(uuid.NewString(), 1)
	require.NoError(t, err)

	dualIss := newTestIssuer(t, []byte("new-key"), []byte("old-key"))
	_, err = dualIss.Validate(token)
	assert.NoError(t, err)

	newOnlyIss := newTestIssuer(t, []byte("new-key"))
	_, err = newOnlyIss.Validate(token)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}
