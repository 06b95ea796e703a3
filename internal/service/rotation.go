package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dkrasnov/tenantauth/internal/events"
	"github.com/dkrasnov/tenantauth/internal/hash"
	"github.com/dkrasnov/tenantauth/internal/logging"
	"github.com/dkrasnov/tenantauth/internal/models"
	"github.com/dkrasnov/tenantauth/internal/repo"
)

const (
	reasonRotated   = "rotated"
	reasonLogout    = "logout"
	reasonLogoutAll = "logout_all"
)

// Rotate exchanges a presented refresh secret for a successor plus a fresh
// neutral access token. A secret rotates successfully at most once; any
// later presentation is treated as theft and fails with refresh_reuse.
func (s *AuthService) Rotate(ctx context.Context, presentedSecret, origin string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.rotate")

	if err := s.checkLimit(ctx, "", origin); err != nil {
		return nil, err
	}

	record, err := s.lookupSecret(presentedSecret)
	if err != nil {
		return nil, err
	}

	if err := s.checkLimit(ctx, record.UserID.String(), origin); err != nil {
		return nil, err
	}

	successor, err := s.rotateRecord(ctx, record)
	if err != nil {
		return nil, err
	}

	user, err := s.Repo.UserByID(record.UserID)
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.Issuer.IssueNeutral(user.ID.String(), user.TokenVersion)
	if err != nil {
		return nil, err
	}

	l.Info("refresh_rotated", "user_id", user.ID, "old_id", record.ID, "new_id", successor.ID)
	return &Session{
		UserID:        user.ID,
		AccessToken:   access,
		AccessExp:     accessExp,
		RefreshID:     successor.ID,
		RefreshSecret: successor.Secret,
		RefreshExp:    successor.ExpiresAt,
	}, nil
}

// SelectTenant rotates like Rotate but additionally requires a live
// membership in the requested tenant and returns a tenant-scoped token.
// Membership can legitimately disappear between issuance and selection;
// that race is rejected, not treated as an internal error.
func (s *AuthService) SelectTenant(ctx context.Context, presentedSecret, tenantRef, origin string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.select_tenant", "tenant", tenantRef)

	if err := s.checkLimit(ctx, "", origin); err != nil {
		return nil, err
	}

	record, err := s.lookupSecret(presentedSecret)
	if err != nil {
		return nil, err
	}

	if err := s.checkLimit(ctx, record.UserID.String(), origin); err != nil {
		return nil, err
	}

	tenant, err := s.Repo.TenantByRef(tenantRef)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrForbiddenTenant
		}
		return nil, err
	}
	member, err := s.Repo.Membership(record.UserID, tenant.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("tenant_forbidden", "status", 403, "user_id", record.UserID)
			return nil, ErrForbiddenTenant
		}
		return nil, err
	}

	successor, err := s.rotateRecord(ctx, record)
	if err != nil {
		return nil, err
	}

	user, err := s.Repo.UserByID(record.UserID)
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.Issuer.IssueNeutral(user.ID.String(), user.TokenVersion)
	if err != nil {
		return nil, err
	}
	tenantAccess, tenantExp, err := s.Issuer.IssueTenant(user.ID.String(), tenant.ID.String(), tenant.Slug, member.RolesMask, user.TokenVersion)
	if err != nil {
		return nil, err
	}

	l.Info("tenant_selected", "user_id", user.ID, "tenant_id", tenant.ID)
	return &Session{
		UserID:        user.ID,
		AccessToken:   access,
		AccessExp:     accessExp,
		RefreshID:     successor.ID,
		RefreshSecret: successor.Secret,
		RefreshExp:    successor.ExpiresAt,
		TenantToken: &TenantToken{
			Token:      tenantAccess,
			ExpiresAt:  tenantExp,
			TenantID:   tenant.ID,
			TenantSlug: tenant.Slug,
			Roles:      member.RolesMask,
		},
	}, nil
}

// LogoutSingle revokes the presented session if it is still active.
// Repeated calls and unknown secrets both succeed; logout is idempotent.
func (s *AuthService) LogoutSingle(ctx context.Context, presentedSecret string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	record, err := s.Repo.LookupByHash(hash.Sha256Hex(presentedSecret))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	if _, err := s.Repo.RevokeIfActive(record.ID, reasonLogout, s.now()); err != nil {
		return err
	}
	l.Info("logout_successful", "user_id", record.UserID)
	return nil
}

// LogoutAll revokes every active session and bumps the token version, which
// kills outstanding access tokens immediately. Order matters: bump first,
// then invalidate the cache, so no request can re-cache the stale version.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	l := logging.FromContext(ctx).With("svc", "auth.logout_all", "user_id", userID)

	count, err := s.Repo.RevokeAllForUser(userID, reasonLogoutAll, s.now())
	if err != nil {
		return 0, err
	}
	version, err := s.Repo.BumpTokenVersion(userID)
	if err != nil {
		return count, err
	}
	s.Versions.Invalidate(userID)

	s.publish(ctx, userID, events.TypeLogoutAll)
	l.Info("logout_all_successful", "revoked", count, "token_version", version)
	return count, nil
}

func (s *AuthService) lookupSecret(presentedSecret string) (*models.RefreshToken, error) {
	record, err := s.Repo.LookupByHash(hash.Sha256Hex(presentedSecret))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}
	return record, nil
}

// rotateRecord runs the chain state machine on one presented record:
// reuse check, expiry check, sliding extension clamped by the absolute
// lifetime cap, then revoke-then-issue. The revoke is conditional, so of N
// concurrent rotations of one secret exactly one issues a successor.
func (s *AuthService) rotateRecord(ctx context.Context, record *models.RefreshToken) (*repo.IssuedRefresh, error) {
	l := logging.FromContext(ctx)
	now := s.now()

	if record.RevokedAt != nil {
		l.Warn("refresh_reuse_detected", "user_id", record.UserID, "record_id", record.ID, "revoked_reason", record.RevokedReason)
		if err := s.Repo.TouchLastUsed(record.ID, now); err != nil {
			l.Error("touch last_used failed", "record_id", record.ID, "error", err)
		}
		s.publish(ctx, record.UserID, events.TypeReuseDetected)
		return nil, ErrRefreshReuse
	}
	if !record.ExpiresAt.After(now) {
		return nil, ErrRefreshExpired
	}

	newExp := now.Add(s.SlidingTTL)
	if lifetimeCap := record.OriginalCreatedAt.Add(s.MaxLifetime); newExp.After(lifetimeCap) {
		newExp = lifetimeCap
	}
	if !newExp.After(now) {
		// The chain has exhausted its absolute lifetime: it ends here,
		// with no revoke and no successor.
		return nil, ErrRefreshMaxLifetime
	}

	ok, err := s.Repo.RevokeIfActive(record.ID, reasonRotated, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent rotation of the same secret won the race.
		l.Warn("refresh_reuse_detected", "user_id", record.UserID, "record_id", record.ID, "revoked_reason", "concurrent")
		s.publish(ctx, record.UserID, events.TypeReuseDetected)
		return nil, ErrRefreshReuse
	}

	// Revoke-then-issue, never the reverse: a crash here strands the chain
	// (user re-logs in) instead of leaving two valid tokens.
	return s.Repo.IssueSuccessor(record.UserID, record.OriginalCreatedAt, newExp, now)
}

func (s *AuthService) checkLimit(ctx context.Context, userID, origin string) error {
	d := s.Limiter.Evaluate(userID, origin)
	if !d.Limited {
		return nil
	}
	logging.FromContext(ctx).Warn("refresh_rate_limited",
		"origin", origin, "user_id", userID,
		"attempts", d.Attempts, "window_seconds", d.WindowSeconds, "dry_run", d.DryRun)
	if !d.Enforced() {
		return nil
	}
	return &RateLimitedError{RetryAfter: d.RetryAfter}
}
