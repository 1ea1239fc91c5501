package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/linkup-messaging-api/internal/models"
)

// UploadRepository records attachments pushed to object storage.
type UploadRepository interface {
	Create(ctx context.Context, record *models.AttachmentUpload) error
	FindByChecksum(ctx context.Context, userID, checksum string) (models.AttachmentUpload, error)
}

type uploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository constructs a repository for attachment upload records.
func NewUploadRepository(db *gorm.DB) UploadRepository {
	return &uploadRepository{db: db}
}

func (r *uploadRepository) Create(ctx context.Context, record *models.AttachmentUpload) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *uploadRepository) FindByChecksum(ctx context.Context, userID, checksum string) (models.AttachmentUpload, error) {
	var record models.AttachmentUpload
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND checksum = ?", userID, checksum).
		Order("id DESC").
		First(&record).Error
	if err != nil {
		return models.AttachmentUpload{}, err
	}
	return record, nil
}
