package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/linkup-messaging-api/internal/models"
)

// Models lists every table owned by the messaging core, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.UserProfile{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.Meeting{},
		&models.UserPresence{},
		&models.Notification{},
		&models.NotificationPreference{},
		&models.AttachmentUpload{},
	}
}

// Migrate creates or updates the messaging schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
