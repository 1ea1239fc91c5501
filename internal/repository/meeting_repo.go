package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/noah-isme/linkup-messaging-api/internal/models"
)

// MeetingRepository persists scheduled meetings.
type MeetingRepository interface {
	Create(ctx context.Context, meeting *models.Meeting) error
	FindByID(ctx context.Context, id string) (models.Meeting, error)
}

type meetingRepository struct {
	db *gorm.DB
}

// NewMeetingRepository constructs a meeting repository backed by GORM.
func NewMeetingRepository(db *gorm.DB) MeetingRepository {
	return &meetingRepository{db: db}
}

func (r *meetingRepository) Create(ctx context.Context, meeting *models.Meeting) error {
	if meeting.ID == "" {
		meeting.ID = uuid.NewString()
	}
	if meeting.Status == "" {
		meeting.Status = models.MeetingPending
	}
	return r.db.WithContext(ctx).Create(meeting).Error
}

func (r *meetingRepository) FindByID(ctx context.Context, id string) (models.Meeting, error) {
	var meeting models.Meeting
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&meeting).Error; err != nil {
		return models.Meeting{}, err
	}
	return meeting, nil
}
