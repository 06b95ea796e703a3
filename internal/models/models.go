package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"     json:"id"`
	Email        string    `gorm:"uniqueIndex;not null"     json:"email"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	TokenVersion int       `gorm:"not null;default:0"       json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Tenant struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Slug string    `gorm:"uniqueIndex;not null" json:"slug"`
	Name string    `gorm:"not null"             json:"name"`
}

type TenantMember struct {
	ID        uint      `gorm:"primaryKey"                         json:"id"`
	TenantID  uuid.UUID `gorm:"type:uuid;index:idx_member;not null" json:"tenant_id"`
	UserID    uuid.UUID `gorm:"type:uuid;index:idx_member;not null" json:"user_id"`
	RolesMask int64     `gorm:"not null;default:0"                 json:"roles_mask"`
}

// RefreshToken is one link of a rotation chain. TokenHash is the SHA-256 of
// the bearer secret; the plaintext never touches the database.
// OriginalCreatedAt is copied from link to link and anchors the absolute
// lifetime cap, while ExpiresAt slides forward on every rotation.
type RefreshToken struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"  json:"id"`
	UserID            uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	TokenHash         string     `gorm:"uniqueIndex;not null"  json:"-"`
	Purpose           string     `gorm:"not null;default:neutral" json:"purpose"`
	CreatedAt         time.Time  `gorm:"not null"              json:"created_at"`
	OriginalCreatedAt time.Time  `gorm:"not null"              json:"original_created_at"`
	ExpiresAt         time.Time  `gorm:"not null"              json:"expires_at"`
	RevokedAt         *time.Time `json:"revoked_at"`
	RevokedReason     string     `json:"revoked_reason"`
	LastUsedAt        *time.Time `json:"last_used_at"`
}

func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

type MagicLinkToken struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	TokenHash  string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt  time.Time  `gorm:"not null"             json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at"`
}

// All lists every entity for AutoMigrate.
func All() []any {
	return []any{&User{}, &Tenant{}, &TenantMember{}, &RefreshToken{}, &MagicLinkToken{}}
}
