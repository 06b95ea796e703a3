package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dkrasnov/tenantauth/internal/events"
	"github.com/dkrasnov/tenantauth/internal/hash"
	"github.com/dkrasnov/tenantauth/internal/logging"
	"github.com/dkrasnov/tenantauth/internal/models"
	"github.com/dkrasnov/tenantauth/internal/ratelimit"
	"github.com/dkrasnov/tenantauth/internal/repo"
	"github.com/dkrasnov/tenantauth/internal/tokens"
	"github.com/dkrasnov/tenantauth/internal/versioncache"
)

type AuthService struct {
	Repo     *repo.GormRepo
	Issuer   *tokens.Issuer
	Hasher   hash.PasswordHasher
	Limiter  *ratelimit.Limiter
	Versions *versioncache.Cache
	Events   *events.Producer

	SlidingTTL  time.Duration
	MaxLifetime time.Duration
	MagicTTL    time.Duration
	CacheTTL    time.Duration

	// Now is swappable for tests; nil means time.Now.
	Now func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type TenantToken struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expiresAt"`
	TenantID   uuid.UUID `json:"tenantId"`
	TenantSlug string    `json:"tenantSlug"`
	Roles      int64     `json:"roles"`
}

// Session is the bundle every successful login/refresh produces. The refresh
// secret is plaintext here exactly once; the HTTP layer moves it into the rt
// cookie and it is never stored or echoed in a body.
type Session struct {
	UserID        uuid.UUID
	AccessToken   string
	AccessExp     time.Time
	RefreshID     uuid.UUID
	RefreshSecret string
	RefreshExp    time.Time
	TenantToken   *TenantToken
}

func (s *AuthService) Signup(ctx context.Context, email, password, tenantRef string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.signup")

	if _, err := s.Repo.UserByEmail(email); err == nil {
		l.Warn("signup_conflict", "status", 409)
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	pwHash, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user, err := s.Repo.CreateUser(email, pwHash)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, user.ID, events.TypeSignup)
	l.Info("signup_successful", "user_id", user.ID)
	return s.issueSession(ctx, user, tenantRef)
}

func (s *AuthService) Login(ctx context.Context, email, password, tenantRef string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	user, err := s.Repo.UserByEmail(email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.Hasher.Verify(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "bad password")
		return nil, ErrInvalidCredentials
	}

	s.publish(ctx, user.ID, events.TypeLogin)
	l.Info("login_successful", "user_id", user.ID)
	return s.issueSession(ctx, user, tenantRef)
}

// ConsumeMagicLink trades a single-use emailed token for a session. Link
// generation and delivery live with the notification system, not here.
func (s *AuthService) ConsumeMagicLink(ctx context.Context, rawToken, tenantRef string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.magic_consume")

	link, err := s.Repo.ConsumeMagicLink(hash.Sha256Hex(rawToken), s.now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("magic_consume_failed", "status", 401)
			return nil, ErrMagicInvalid
		}
		return nil, err
	}
	user, err := s.Repo.UserByID(link.UserID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, user.ID, events.TypeLogin)
	l.Info("magic_consume_successful", "user_id", user.ID)
	return s.issueSession(ctx, user, tenantRef)
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User, tenantRef string) (*Session, error) {
	now := s.now()

	refresh, err := s.Repo.IssueNeutral(user.ID, s.SlidingTTL, now)
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.Issuer.IssueNeutral(user.ID.String(), user.TokenVersion)
	if err != nil {
		return nil, err
	}

	session := &Session{
		UserID:        user.ID,
		AccessToken:   access,
		AccessExp:     accessExp,
		RefreshID:     refresh.ID,
		RefreshSecret: refresh.Secret,
		RefreshExp:    refresh.ExpiresAt,
	}

	tenantToken, err := s.tenantTokenFor(user, tenantRef)
	if err != nil {
		return nil, err
	}
	session.TenantToken = tenantToken

	s.Versions.Set(user.ID, user.TokenVersion, s.CacheTTL)
	return session, nil
}

// tenantTokenFor mints a tenant-scoped token when one tenant was explicitly
// requested, or when the user belongs to exactly one tenant.
func (s *AuthService) tenantTokenFor(user *models.User, tenantRef string) (*TenantToken, error) {
	var tenant *models.Tenant
	var member *models.TenantMember

	if tenantRef != "" {
		t, err := s.Repo.TenantByRef(tenantRef)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrForbiddenTenant
			}
			return nil, err
		}
		m, err := s.Repo.Membership(user.ID, t.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrForbiddenTenant
			}
			return nil, err
		}
		tenant, member = t, m
	} else {
		members, err := s.Repo.MembershipsForUser(user.ID)
		if err != nil {
			return nil, err
		}
		if len(members) != 1 {
			return nil, nil
		}
		t, err := s.Repo.TenantByID(members[0].TenantID)
		if err != nil {
			return nil, err
		}
		tenant, member = t, &members[0]
	}

	token, exp, err := s.Issuer.IssueTenant(user.ID.String(), tenant.ID.String(), tenant.Slug, member.RolesMask, user.TokenVersion)
	if err != nil {
		return nil, err
	}
	return &TenantToken{
		Token:      token,
		ExpiresAt:  exp,
		TenantID:   tenant.ID,
		TenantSlug: tenant.Slug,
		Roles:      member.RolesMask,
	}, nil
}

func (s *AuthService) publish(ctx context.Context, userID uuid.UUID, eventType string) {
	event := map[string]any{
		"type":    eventType,
		"user_id": userID.String(),
		"at":      s.now().UTC().Format(time.RFC3339),
	}
	if err := s.Events.Publish(ctx, userID.String(), event); err != nil {
		logging.FromContext(ctx).Error("event publish failed", "type", eventType, "error", err)
	}
}
