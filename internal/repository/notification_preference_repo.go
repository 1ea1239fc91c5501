package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/linkup-messaging-api/internal/models"
)

// NotificationPreferenceRepository stores per-user delivery preferences.
type NotificationPreferenceRepository interface {
	FindOrCreate(ctx context.Context, userID string) (models.NotificationPreference, error)
	Find(ctx context.Context, userID string) (models.NotificationPreference, bool, error)
	Save(ctx context.Context, preference *models.NotificationPreference) error
}

type notificationPreferenceRepository struct {
	db *gorm.DB
}

// NewNotificationPreferenceRepository constructs a preference repository backed by GORM.
func NewNotificationPreferenceRepository(db *gorm.DB) NotificationPreferenceRepository {
	return &notificationPreferenceRepository{db: db}
}

func (r *notificationPreferenceRepository) Find(ctx context.Context, userID string) (models.NotificationPreference, bool, error) {
	var preference models.NotificationPreference
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&preference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NotificationPreference{}, false, nil
	}
	if err != nil {
		return models.NotificationPreference{}, false, err
	}
	return preference, true, nil
}

func (r *notificationPreferenceRepository) FindOrCreate(ctx context.Context, userID string) (models.NotificationPreference, error) {
	preference, found, err := r.Find(ctx, userID)
	if err != nil {
		return models.NotificationPreference{}, err
	}
	if found {
		return preference, nil
	}

	preference = models.DefaultNotificationPreference(userID)
	if err := r.db.WithContext(ctx).Create(&preference).Error; err != nil {
		if IsDuplicateKey(err) {
			existing, _, findErr := r.Find(ctx, userID)
			return existing, findErr
		}
		return models.NotificationPreference{}, err
	}
	return preference, nil
}

func (r *notificationPreferenceRepository) Save(ctx context.Context, preference *models.NotificationPreference) error {
	return r.db.WithContext(ctx).Save(preference).Error
}
