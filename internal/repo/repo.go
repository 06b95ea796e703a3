package repo

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dkrasnov/tenantauth/internal/models"
)

var ErrNotFound = errors.New("record not found")

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) CreateUser(email, passwordHash string) (*models.User, error) {
	user := models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
	}
	if err := r.DB.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) UserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.DB.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) UserByID(id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// BumpTokenVersion atomically increments the user's token version and
// returns the new value. Every outstanding access token that embeds an
// older version becomes invalid the moment this commits.
func (r *GormRepo) BumpTokenVersion(id uuid.UUID) (int, error) {
	if err := r.DB.Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("token_version", gorm.Expr("token_version + 1")).Error; err != nil {
		return 0, err
	}
	user, err := r.UserByID(id)
	if err != nil {
		return 0, err
	}
	return user.TokenVersion, nil
}

func (r *GormRepo) TenantByRef(ref string) (*models.Tenant, error) {
	var tenant models.Tenant
	q := r.DB.Where("slug = ?", ref)
	if id, err := uuid.Parse(ref); err == nil {
		q = r.DB.Where("id = ? OR slug = ?", id, ref)
	}
	if err := q.First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *GormRepo) Membership(userID, tenantID uuid.UUID) (*models.TenantMember, error) {
	var member models.TenantMember
	if err := r.DB.Where("user_id = ? AND tenant_id = ?", userID, tenantID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &member, nil
}

func (r *GormRepo) MembershipsForUser(userID uuid.UUID) ([]models.TenantMember, error) {
	var members []models.TenantMember
	if err := r.DB.Where("user_id = ?", userID).Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (r *GormRepo) TenantByID(id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.DB.Where("id = ?", id).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}
