package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/linkup-messaging-api/internal/models"
)

// MessageRepository persists the per-conversation message log.
type MessageRepository interface {
	Append(ctx context.Context, message *models.Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	FindByID(ctx context.Context, id uint) (models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
	SoftDelete(ctx context.Context, id uint, senderID string) (bool, error)
	CountUnreadForUser(ctx context.Context, userID string) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Append inserts the message and bumps the owning conversation's sort timestamps in the
// same transaction.
func (r *messageRepository) Append(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}

		result := tx.Model(&models.Conversation{}).
			Where("id = ?", message.ConversationID).
			Updates(map[string]interface{}{
				"last_message_at": message.CreatedAt,
				"updated_at":      message.CreatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) FindByID(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read = ?", conversationID, readerID, false).
		Update("read", true)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, id uint, senderID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND sender_id = ? AND is_deleted = ?", id, senderID, false).
		Update("is_deleted", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *messageRepository) CountUnreadForUser(ctx context.Context, userID string) (int64, error) {
	conversations := r.db.Model(&models.ConversationParticipant{}).
		Select("conversation_id").
		Where("user_id = ?", userID)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id IN (?) AND sender_id <> ? AND read = ? AND is_deleted = ?", conversations, userID, false, false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
