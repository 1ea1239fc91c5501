package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/noah-isme/linkup-messaging-api/internal/models"
)

// ConversationOverview is the application-side join behind the inbox list: the conversation,
// the other participant, the last visible message and the unread count for the viewer.
type ConversationOverview struct {
	Conversation models.Conversation
	OtherUser    models.UserProfile
	LastMessage  *models.Message
	UnreadCount  int64
}

// ConversationRepository persists conversations and their participants.
type ConversationRepository interface {
	FindBetween(ctx context.Context, userA, userB string) (models.Conversation, error)
	FindByID(ctx context.Context, id string) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	Create(ctx context.Context, conversation *models.Conversation, participantIDs []string, initial *models.Message) error
	Delete(ctx context.Context, id string) (bool, error)
	SetBlocked(ctx context.Context, id string, blocked bool, blockedBy *string) error
	ListForUser(ctx context.Context, userID string) ([]ConversationOverview, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository constructs a conversation repository backed by GORM.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// PairKey returns the order-independent key of a participant pair.
func PairKey(userA, userB string) string {
	ids := []string{strings.TrimSpace(userA), strings.TrimSpace(userB)}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}

// IsDuplicateKey reports whether err is a uniqueness violation raised by the store.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func (r *conversationRepository) FindBetween(ctx context.Context, userA, userB string) (models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("pair_key = ?", PairKey(userA, userB)).
		First(&conversation).Error
	if err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).Preload("Participants").Where("id = ?", id).First(&conversation).Error; err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation, participantIDs []string, initial *models.Message) error {
	if len(participantIDs) != 2 {
		return errors.New("a conversation requires exactly two participants")
	}
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}
	conversation.PairKey = PairKey(participantIDs[0], participantIDs[1])

	now := time.Now().UTC()
	if conversation.LastMessageAt.IsZero() {
		conversation.LastMessageAt = now
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants").Create(conversation).Error; err != nil {
			return err
		}

		participants := make([]models.ConversationParticipant, 0, len(participantIDs))
		for _, userID := range participantIDs {
			participants = append(participants, models.ConversationParticipant{
				ConversationID: conversation.ID,
				UserID:         userID,
				JoinedAt:       now,
			})
		}
		if err := tx.Create(&participants).Error; err != nil {
			return err
		}
		conversation.Participants = participants

		if initial == nil {
			return nil
		}

		initial.ConversationID = conversation.ID
		if err := tx.Create(initial).Error; err != nil {
			return err
		}

		conversation.LastMessageAt = initial.CreatedAt
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversation.ID).
			Updates(map[string]interface{}{
				"last_message_at": initial.CreatedAt,
				"updated_at":      initial.CreatedAt,
			}).Error
	})
}

func (r *conversationRepository) Delete(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Meeting{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&models.ConversationParticipant{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.Conversation{})
		if result.Error != nil {
			return result.Error
		}
		removed = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (r *conversationRepository) SetBlocked(ctx context.Context, id string, blocked bool, blockedBy *string) error {
	updates := map[string]interface{}{
		"is_blocked": blocked,
		"blocked_by": nil,
		"updated_at": time.Now().UTC(),
	}
	if blocked {
		updates["blocked_by"] = blockedBy
	}

	result := r.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type unreadRow struct {
	ConversationID string
	Count          int64
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]ConversationOverview, error) {
	db := r.db.WithContext(ctx)

	var ids []string
	if err := db.Model(&models.ConversationParticipant{}).
		Where("user_id = ?", userID).
		Pluck("conversation_id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []ConversationOverview{}, nil
	}

	var conversations []models.Conversation
	if err := db.Where("id IN ?", ids).Order("last_message_at DESC").Find(&conversations).Error; err != nil {
		return nil, err
	}

	var others []models.ConversationParticipant
	if err := db.Where("conversation_id IN ? AND user_id <> ?", ids, userID).Find(&others).Error; err != nil {
		return nil, err
	}
	otherByConversation := make(map[string]string, len(others))
	otherIDs := make([]string, 0, len(others))
	for _, participant := range others {
		otherByConversation[participant.ConversationID] = participant.UserID
		otherIDs = append(otherIDs, participant.UserID)
	}

	profiles := make(map[string]models.UserProfile, len(otherIDs))
	if len(otherIDs) > 0 {
		var rows []models.UserProfile
		if err := db.Where("id IN ?", otherIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, profile := range rows {
			profiles[profile.ID] = profile
		}
	}

	latest := db.Model(&models.Message{}).
		Select("MAX(id)").
		Where("conversation_id IN ? AND is_deleted = ?", ids, false).
		Group("conversation_id")
	var lastMessages []models.Message
	if err := db.Where("id IN (?)", latest).Find(&lastMessages).Error; err != nil {
		return nil, err
	}
	lastByConversation := make(map[string]models.Message, len(lastMessages))
	for _, message := range lastMessages {
		lastByConversation[message.ConversationID] = message
	}

	var unread []unreadRow
	if err := db.Model(&models.Message{}).
		Select("conversation_id, COUNT(*) AS count").
		Where("conversation_id IN ? AND sender_id <> ? AND read = ? AND is_deleted = ?", ids, userID, false, false).
		Group("conversation_id").
		Scan(&unread).Error; err != nil {
		return nil, err
	}
	unreadByConversation := make(map[string]int64, len(unread))
	for _, row := range unread {
		unreadByConversation[row.ConversationID] = row.Count
	}

	out := make([]ConversationOverview, 0, len(conversations))
	for _, conversation := range conversations {
		otherID := otherByConversation[conversation.ID]
		profile, ok := profiles[otherID]
		if !ok {
			profile = models.UserProfile{ID: otherID}
		}

		overview := ConversationOverview{
			Conversation: conversation,
			OtherUser:    profile,
			UnreadCount:  unreadByConversation[conversation.ID],
		}
		if message, ok := lastByConversation[conversation.ID]; ok {
			m := message
			overview.LastMessage = &m
		}
		out = append(out, overview)
	}

	return out, nil
}
