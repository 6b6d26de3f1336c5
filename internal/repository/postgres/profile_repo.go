package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/tastelab/cupping-rooms/internal/domain"
	"gorm.io/gorm"
)

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *profileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Create(ctx context.Context, profile *domain.UserProfile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

func (r *profileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) GetByClerkID(ctx context.Context, clerkID string) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	err := r.db.WithContext(ctx).First(&profile, "clerk_id = ?", clerkID).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetByUsername matches case-insensitively.
func (r *profileRepository) GetByUsername(ctx context.Context, username string) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	err := r.db.WithContext(ctx).
		First(&profile, "LOWER(username) = ?", strings.ToLower(username)).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) SearchByUsername(ctx context.Context, prefix string, limit int) ([]*domain.UserProfile, error) {
	var profiles []*domain.UserProfile
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(prefix))
	err := r.db.WithContext(ctx).
		Where("username IS NOT NULL AND LOWER(username) LIKE ?", escaped+"%").
		Order("username").
		Limit(limit).
		Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *profileRepository) Update(ctx context.Context, profile *domain.UserProfile) error {
	return r.db.WithContext(ctx).Save(profile).Error
}

func (r *profileRepository) DeleteByClerkID(ctx context.Context, clerkID string) error {
	return r.db.WithContext(ctx).Delete(&domain.UserProfile{}, "clerk_id = ?", clerkID).Error
}
