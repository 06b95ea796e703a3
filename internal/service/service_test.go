package service

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dkrasnov/tenantauth/internal/hash"
	"github.com/dkrasnov/tenantauth/internal/keyring"
	"github.com/dkrasnov/tenantauth/internal/models"
	"github.com/dkrasnov/tenantauth/internal/ratelimit"
	"github.com/dkrasnov/tenantauth/internal/repo"
	"github.com/dkrasnov/tenantauth/internal/tokens"
	"github.com/dkrasnov/tenantauth/internal/versioncache"
)

func initTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(models.All()...))
	return gdb
}

func newTestService(t *testing.T) *AuthService {
	t.Helper()

	ring, err := keyring.New([][]byte{[]byte("test-signing-key")})
	require.NoError(t, err)

	return &AuthService{
		Repo: &repo.GormRepo{DB: initTestDB(t)},
		Issuer: &tokens.Issuer{
			Ring:      ring,
			Issuer:    "tenantauth-test",
			Audience:  "tenantauth-test",
			AccessTTL: 15 * time.Minute,
		},
		Hasher:      hash.Bcrypt{},
		Limiter:     ratelimit.New(1000, time.Minute, false),
		Versions:    versioncache.New(),
		SlidingTTL:  30 * 24 * time.Hour,
		MaxLifetime: 90 * 24 * time.Hour,
		MagicTTL:    15 * time.Minute,
		CacheTTL:    30 * time.Second,
	}
}

func seedUser(t *testing.T, svc *AuthService, email string) *models.User {
	t.Helper()

	pwHash, err := svc.Hasher.Hash("Secret123")
	require.NoError(t, err)
	user, err := svc.Repo.CreateUser(email, pwHash)
	require.NoError(t, err)
	return user
}

func seedTenant(t *testing.T, svc *AuthService, slug string, userID uuid.UUID, roles int64) *models.Tenant {
	t.Helper()

	tenant := models.Tenant{ID: uuid.New(), Slug: slug, Name: slug}
	require.NoError(t, svc.Repo.DB.Create(&tenant).Error)
	member := models.TenantMember{TenantID: tenant.ID, UserID: userID, RolesMask: roles}
	require.NoError(t, svc.Repo.DB.Create(&member).Error)
	return &tenant
}

func uniqueEmail() string {
	return "u_" + uuid.NewString() + "@example.com"
}
