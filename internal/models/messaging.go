package models

import (
	"time"

	"gorm.io/datatypes"
)

// Context types a conversation may originate from.
const (
	ContextJob         = "job"
	ContextAuPair      = "aupair"
	ContextVisa        = "visa"
	ContextEvent       = "event"
	ContextMarketplace = "marketplace"
	ContextCommunity   = "community"
	ContextLifestyle   = "lifestyle"
	ContextEducation   = "education"
	ContextSupport     = "support"
)

// Message types.
const (
	MessageTypeUser   = "user"
	MessageTypeSystem = "system"
	MessageTypeAdmin  = "admin"
)

// Meeting statuses.
const (
	MeetingPending   = "pending"
	MeetingAccepted  = "accepted"
	MeetingDeclined  = "declined"
	MeetingCancelled = "cancelled"
)

// Conversation is a 1:1 thread between two users, optionally scoped to a context.
type Conversation struct {
	ID               string                    `gorm:"primaryKey;size:36" json:"id"`
	PairKey          string                    `gorm:"size:160;uniqueIndex;not null" json:"-"`
	ContextType      *string                   `gorm:"size:32;index" json:"context_type"`
	ContextID        *string                   `gorm:"size:64" json:"context_id"`
	RelatedItemTitle *string                   `gorm:"size:255" json:"related_item_title"`
	IsBlocked        bool                      `gorm:"not null;default:false" json:"is_blocked"`
	BlockedBy        *string                   `gorm:"size:64" json:"blocked_by"`
	LastMessageAt    time.Time                 `gorm:"index" json:"last_message_at"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
	Participants     []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// ConversationParticipant links a user to a conversation.
type ConversationParticipant struct {
	ConversationID string    `gorm:"primaryKey;size:36" json:"conversation_id"`
	UserID         string    `gorm:"primaryKey;size:64;index" json:"user_id"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Message is an immutable entry in a conversation log. Only Read and IsDeleted change.
type Message struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	ConversationID string            `gorm:"size:36;index:idx_messages_conversation_created,priority:1;not null" json:"conversation_id"`
	SenderID       string            `gorm:"size:64;index;not null" json:"sender_id"`
	Content        string            `gorm:"type:text" json:"content"`
	ContentKey     *string           `gorm:"size:128" json:"content_key,omitempty"`
	ContentParams  datatypes.JSONMap `gorm:"type:json" json:"content_params,omitempty"`
	MessageType    string            `gorm:"size:16;not null;default:user" json:"message_type"`
	Read           bool              `gorm:"not null;default:false;index" json:"read"`
	IsDeleted      bool              `gorm:"not null;default:false" json:"is_deleted"`
	AttachmentURL  *string           `gorm:"type:text" json:"attachment_url,omitempty"`
	AttachmentType *string           `gorm:"size:16" json:"attachment_type,omitempty"`
	AttachmentName *string           `gorm:"size:255" json:"attachment_name,omitempty"`
	MeetingID      *string           `gorm:"size:36;index" json:"meeting_id,omitempty"`
	CreatedAt      time.Time         `gorm:"index:idx_messages_conversation_created,priority:2" json:"created_at"`
}

// Meeting is a scheduling payload announced inside a conversation.
type Meeting struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string    `gorm:"size:36;index;not null" json:"conversation_id"`
	OrganizerID    string    `gorm:"size:64;not null" json:"organizer_id"`
	RecipientID    string    `gorm:"size:64;not null" json:"recipient_id"`
	Title          string    `gorm:"size:255;not null" json:"title"`
	Description    string    `gorm:"type:text" json:"description"`
	StartTime      time.Time `gorm:"not null" json:"start_time"`
	EndTime        time.Time `gorm:"not null" json:"end_time"`
	Status         string    `gorm:"size:16;not null;default:pending" json:"status"`
	MeetingLink    *string   `gorm:"type:text" json:"meeting_link,omitempty"`
	Platform       *string   `gorm:"size:64" json:"platform,omitempty"`
	Location       *string   `gorm:"size:255" json:"location,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserPresence tracks the online status of a user.
type UserPresence struct {
	UserID     string    `gorm:"primaryKey;size:64" json:"user_id"`
	IsOnline   bool      `gorm:"not null" json:"is_online"`
	LastSeenAt time.Time `json:"last_seen_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName keeps the presence table name stable across GORM naming strategies.
func (UserPresence) TableName() string {
	return "user_presence"
}

// UserProfile is the public profile owned by the identity provider. The messaging core only reads it.
type UserProfile struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Email     string    `gorm:"size:255;index" json:"email"`
	FullName  *string   `gorm:"size:255" json:"full_name,omitempty"`
	AvatarURL *string   `gorm:"type:text" json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName maps profiles onto the identity provider's table.
func (UserProfile) TableName() string {
	return "profiles"
}
