package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/linkup-messaging-api/internal/models"
)

// ProfileRepository reads public user profiles owned by the identity provider.
type ProfileRepository interface {
	FindByID(ctx context.Context, id string) (models.UserProfile, error)
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository constructs a profile repository backed by GORM.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) FindByID(ctx context.Context, id string) (models.UserProfile, error) {
	var profile models.UserProfile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}
