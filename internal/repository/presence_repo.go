package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/linkup-messaging-api/internal/models"
)

// PresenceRepository stores one presence row per user.
type PresenceRepository interface {
	Upsert(ctx context.Context, presence *models.UserPresence) error
	Find(ctx context.Context, userID string) (models.UserPresence, error)
}

type presenceRepository struct {
	db *gorm.DB
}

// NewPresenceRepository constructs a presence repository backed by GORM.
func NewPresenceRepository(db *gorm.DB) PresenceRepository {
	return &presenceRepository{db: db}
}

func (r *presenceRepository) Upsert(ctx context.Context, presence *models.UserPresence) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_online", "last_seen_at", "updated_at"}),
	}).Create(presence).Error
}

func (r *presenceRepository) Find(ctx context.Context, userID string) (models.UserPresence, error) {
	var presence models.UserPresence
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&presence).Error; err != nil {
		return models.UserPresence{}, err
	}
	return presence, nil
}
