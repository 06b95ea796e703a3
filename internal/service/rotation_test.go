package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkrasnov/tenantauth/internal/hash"
	"github.com/dkrasnov/tenantauth/internal/models"
	"github.com/dkrasnov/tenantauth/internal/ratelimit"
)

const testOrigin = "10.0.0.1"

// Login issues A; refreshing with A yields B and kills A; refreshing with A
// again is reuse; refreshing with B yields C.
func TestRotate_SingleUseInvariant(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, svc, uniqueEmail())

	sessionA, err := svc.Login(ctx, user.Email, "Secret123", "")
	require.NoError(t, err)

	sessionB, err := svc.Rotate(ctx, sessionA.RefreshSecret, testOrigin)
	require.NoError(t, err)
	assert.NotEqual(t, sessionA.RefreshSecret, sessionB.RefreshSecret)

	recordA, err := svc.Repo.LookupByHash(hash.Sha256Hex(sessionA.RefreshSecret))
	require.NoError(t, err)
	require.NotNil(t, recordA.RevokedAt)
	assert.Equal(t, "rotated", recordA.RevokedReason)
	require.NotNil(t, recordA.LastUsedAt)

	_, err = svc.Rotate(ctx, sessionA.RefreshSecret, testOrigin)
	assert.ErrorIs(t, err, ErrRefreshReuse)

	sessionC, err := svc.Rotate(ctx, sessionB.RefreshSecret, testOrigin)
	require.NoError(t, err)
	assert.NotEqual(t, sessionB.RefreshSecret, sessionC.RefreshSecret)
}

func TestRotate_UnknownSecret(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	_, err := svc.Rotate(context.Background(), "never-issued", testOrigin)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
}

func TestRotate_Expired(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, svc, uniqueEmail())

	start := time.Now()
	svc.Now = func() time.Time { return start }

	session, err := svc.Login(ctx, user.Email, "Secret123", "")
	require.NoError(t, err)

	svc.Now = func() time.Time { return start.Add(svc.SlidingTTL + time.Hour) }
	_, err = svc.Rotate(ctx, session.RefreshSecret, testOrigin)
	assert.ErrorIs(t, err, ErrRefreshExpired)
}

func TestRotate_SlidingExpiryClampedToCap(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	svc.SlidingTTL = 24 * time.Hour
	svc.MaxLifetime = time.Hour
	ctx := context.Background()
	user := seedUser(t, svc, uniqueEmail())

	start := time.Now()
	svc.Now = func() time.Time { return start }

	session, err := svc.Login(ctx, user.Email, "Secret123", "")
	require.NoError(t, err)

	svc.Now = func() time.Time { return start.Add(30 * time.Minute) }
	rotated, err := svc.Rotate(ctx, session.RefreshSecret, testOrigin)
	require.NoError(t, err)

	// The successor never outlives originalCreatedAt + maxLifetime.
	assert.WithinDuration(t, start.Add(time.Hour), rotated.RefreshExp, time.Second)

	record, err := svc.Repo.LookupByHash(hash.Sha256Hex(rotated.RefreshSecret))
	require.NoError(t, err)
	assert.WithinDuration(t, start, record.OriginalCreatedAt, time.Second)
}

func TestRotate_MaxLifetimeExceeded_NoMutation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	svc.SlidingTTL = 24 * time.Hour
	svc.MaxLifetime = time.Hour
	ctx := context.Background()
	user := seedUser(t, svc, uniqueEmail())

	start := time.Now()
	svc.Now = func() time.Time { return start }

	session, err := svc.Login(ctx, user.Email, "Secret123", "")
	require.NoError(t, err)

	// Past the cap but before the record's own expiry: the chain must end,
	// not extend, and the presented record must stay untouched.
	svc.Now = func() time.Time { return start.Add(2 * time.Hour) }
	_, err = svc.Rotate(ctx, session.RefreshSecret, testOrigin)
	assert.ErrorIs(t, err, ErrRefreshMaxLifetime)

	record, err := svc.Repo.LookupByHash(hash.Sha256Hex(session.RefreshSecret))
	require.NoError(t, err)
	assert.Nil(t, record.RevokedAt)
}

// Two rotations racing on the same secret: the conditional revoke lets
// exactly one of them win, the stale loser sees reuse.
func TestRotateRecord_ConcurrentLoserGetsReuse(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, svc, uniqueEmail())

	session, err := svc.Login(ctx, user.Email, "Secret123", "")
	require.NoError(t, err)

	record, err := svc.Repo.LookupByHash(hash.Sha256Hex(session.RefreshSecret))
	require.NoError(t, err)
	stale := *record

	_, err = svc.rotateRecord(ctx, record)
	require.NoError(t, err)

	_, err = svc.rotateRecord(ctx, &stale)
	assert.ErrorIs(t, err, ErrRefreshReuse)
}

func TestSelectTenant_RequiresMembership(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, svc, uniqueEmail())
	seedTenant(t, svc, "acme", user.ID, 3)

	outsider := models.Tenant{ID: uuid.New(), Slug: "globex", Name: "globex"}
	require.NoError(t, svc.Repo.DB.Create(&outsider).Error)

	session, err := svc.Login(ctx, user.Email, "Secret123", "")
	require.NoError(t, err)

	selected, err := svc.SelectTenant(ctx, session.RefreshSecret, "acme", testOrigin)
	require.NoError(t, err)
	require.NotNil(t, selected.TenantToken)
	assert.Equal(t, "acme", selected.TenantToken.TenantSlug)
	assert.Equal(t, int64(3), selected.TenantToken.Roles)

	// The rotation happened: selecting again with the old secret is reuse.
	_, err = svc.SelectTenant(ctx, session.RefreshSecret, "acme", testOrigin)
	assert.ErrorIs(t, err, ErrRefreshReuse)

	_, err = svc.SelectTenant(ctx, selected.RefreshSecret, "globex", testOrigin)
	assert.ErrorIs(t, err, ErrForbiddenTenant)
}

func TestSelectTenant_MembershipRemovedMidSession(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, svc, uniqueEmail())
	tenant := seedTenant(t, svc, "acme", user.ID, 1)

	session, err := svc.Login(ctx, user.Email, "Secret123", "")
	require.NoError(t, err)

	require.NoError(t, svc.Repo.DB.
		Where("tenant_id = ? AND user_id = ?", tenant.ID, user.ID).
		Delete(&models.TenantMember{}).Error)

	_, err = svc.SelectTenant(ctx, session.RefreshSecret, "acme", testOrigin)
	assert.ErrorIs(t, err, ErrForbiddenTenant)

	// A forbidden selection must not burn the refresh token.
	record, err := svc.Repo.LookupByHash(hash.Sha256Hex(session.RefreshSecret))
	require.NoError(t, err)
	assert.Nil(t, record.RevokedAt)
}

func TestLogoutSingle_Idempotent(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, svc, uniqueEmail())

	session, err := svc.Login(ctx, user.Email, "Secret123", "")
	require.NoError(t, err)

	require.NoError(t, svc.LogoutSingle(ctx, session.RefreshSecret))
	require.NoError(t, svc.LogoutSingle(ctx, session.RefreshSecret))
	require.NoError(t, svc.LogoutSingle(ctx, "never-issued"))

	_, err = svc.Rotate(ctx, session.RefreshSecret, testOrigin)
	assert.ErrorIs(t, err, ErrRefreshReuse)
}

func TestLogoutAll_RevokesAndBumpsVersion(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, svc, uniqueEmail())

	first, err := svc.Login(ctx, user.Email, "Secret123", "")
	require.NoError(t, err)
	second, err := svc.Login(ctx, user.Email, "Secret123", "")
	require.NoError(t, err)

	count, err := svc.LogoutAll(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	reloaded, err := svc.Repo.UserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.TokenVersion+1, reloaded.TokenVersion)

	// The cache entry is gone the instant the bump commits.
	_, cached := svc.Versions.TryGet(user.ID)
	assert.False(t, cached)

	_, err = svc.Rotate(ctx, first.RefreshSecret, testOrigin)
	assert.ErrorIs(t, err, ErrRefreshReuse)
	_, err = svc.Rotate(ctx, second.RefreshSecret, testOrigin)
	assert.ErrorIs(t, err, ErrRefreshReuse)
}

func TestRotate_RateLimited(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	svc.Limiter = ratelimit.New(2, time.Minute, false)
	ctx := context.Background()

	// Unknown secrets still consume origin-only budget, so spraying random
	// tokens gets throttled before the store sees a third lookup.
	_, err := svc.Rotate(ctx, "spray-1", testOrigin)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
	_, err = svc.Rotate(ctx, "spray-2", testOrigin)
	assert.ErrorIs(t, err, ErrRefreshInvalid)

	_, err = svc.Rotate(ctx, "spray-3", testOrigin)
	assert.ErrorIs(t, err, ErrRateLimited)

	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Greater(t, limited.RetryAfter, time.Duration(0))
}

func TestRotate_RateLimitDryRunNeverBlocks(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	svc.Limiter = ratelimit.New(1, time.Minute, true)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Rotate(ctx, "spray", testOrigin)
		assert.ErrorIs(t, err, ErrRefreshInvalid, "dry-run must never return rate_limited")
	}
}
