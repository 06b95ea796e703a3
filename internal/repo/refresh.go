package repo

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dkrasnov/tenantauth/internal/hash"
	"github.com/dkrasnov/tenantauth/internal/models"
)

const PurposeNeutral = "neutral"

type IssuedRefresh struct {
	ID        uuid.UUID
	Secret    string
	ExpiresAt time.Time
}

// IssueNeutral starts a fresh rotation chain: OriginalCreatedAt is fixed at
// issuance and travels with every successor.
func (r *GormRepo) IssueNeutral(userID uuid.UUID, ttl time.Duration, now time.Time) (*IssuedRefresh, error) {
	return r.issueChained(userID, now, now.Add(ttl), now)
}

// IssueSuccessor creates the next link of an existing chain, carrying the
// chain's original creation time forward.
func (r *GormRepo) IssueSuccessor(userID uuid.UUID, originalCreatedAt, expiresAt, now time.Time) (*IssuedRefresh, error) {
	return r.issueChained(userID, originalCreatedAt, expiresAt, now)
}

func (r *GormRepo) issueChained(userID uuid.UUID, originalCreatedAt, expiresAt, now time.Time) (*IssuedRefresh, error) {
	secret, err := hash.NewSecret()
	if err != nil {
		return nil, err
	}
	record := models.RefreshToken{
		ID:                uuid.New(),
		UserID:            userID,
		TokenHash:         hash.Sha256Hex(secret),
		Purpose:           PurposeNeutral,
		CreatedAt:         now,
		OriginalCreatedAt: originalCreatedAt,
		ExpiresAt:         expiresAt,
	}
	if err := r.DB.Create(&record).Error; err != nil {
		return nil, err
	}
	return &IssuedRefresh{ID: record.ID, Secret: secret, ExpiresAt: expiresAt}, nil
}

func (r *GormRepo) LookupByHash(tokenHash string) (*models.RefreshToken, error) {
	var record models.RefreshToken
	if err := r.DB.Where("token_hash = ?", tokenHash).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// RevokeIfActive flips the record to revoked only when it is still active.
// The conditional WHERE makes concurrent rotations of the same secret
// serialize to exactly one winner: losers see zero rows affected.
func (r *GormRepo) RevokeIfActive(id uuid.UUID, reason string, now time.Time) (bool, error) {
	res := r.DB.Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{
			"revoked_at":     now,
			"revoked_reason": reason,
			"last_used_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RevokeOwnedIfActive is RevokeIfActive scoped to an owner, for the
// sessions API: a caller can only ever revoke their own records.
func (r *GormRepo) RevokeOwnedIfActive(id, userID uuid.UUID, reason string, now time.Time) (bool, error) {
	res := r.DB.Model(&models.RefreshToken{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", id, userID).
		Updates(map[string]any{
			"revoked_at":     now,
			"revoked_reason": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) RevokeAllForUser(userID uuid.UUID, reason string, now time.Time) (int64, error) {
	res := r.DB.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]any{
			"revoked_at":     now,
			"revoked_reason": reason,
		})
	return res.RowsAffected, res.Error
}

func (r *GormRepo) TouchLastUsed(id uuid.UUID, now time.Time) error {
	return r.DB.Model(&models.RefreshToken{}).
		Where("id = ?", id).
		Update("last_used_at", now).Error
}

func (r *GormRepo) ActiveForUser(userID uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
	var records []models.RefreshToken
	err := r.DB.Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

func (r *GormRepo) CreateMagicLink(userID uuid.UUID, ttl time.Duration, now time.Time) (string, error) {
	secret, err := hash.NewSecret()
	if err != nil {
		return "", err
	}
	record := models.MagicLinkToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: hash.Sha256Hex(secret),
		ExpiresAt: now.Add(ttl),
	}
	if err := r.DB.Create(&record).Error; err != nil {
		return "", err
	}
	return secret, nil
}

// ConsumeMagicLink marks the link used and returns it; a second consume of
// the same link fails with ErrNotFound because the conditional update
// matches nothing.
func (r *GormRepo) ConsumeMagicLink(tokenHash string, now time.Time) (*models.MagicLinkToken, error) {
	var record models.MagicLinkToken
	if err := r.DB.Where("token_hash = ?", tokenHash).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if record.ConsumedAt != nil || !record.ExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	res := r.DB.Model(&models.MagicLinkToken{}).
		Where("id = ? AND consumed_at IS NULL", record.ID).
		Update("consumed_at", now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, ErrNotFound
	}
	return &record, nil
}
