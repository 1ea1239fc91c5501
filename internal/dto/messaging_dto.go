package dto

import (
	"time"

	"github.com/noah-isme/linkup-messaging-api/internal/models"
)

// Message body kinds.
const (
	BodyPlain     = "plain"
	BodyLocalized = "localized"
)

// MessageBody is either plain text or a translation key with parameters rendered by the client.
type MessageBody struct {
	Kind   string                 `json:"kind" validate:"required,oneof=plain localized"`
	Text   string                 `json:"text,omitempty" validate:"max=4000"`
	Key    string                 `json:"key,omitempty" validate:"required_if=Kind localized,max=128"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// PlainText builds a plain text body.
func PlainText(text string) MessageBody {
	return MessageBody{Kind: BodyPlain, Text: text}
}

// LocalizedText builds a body that the client renders through its translation table.
func LocalizedText(key string, params map[string]interface{}) MessageBody {
	return MessageBody{Kind: BodyLocalized, Key: key, Params: params}
}

// Attachment is a file embedded into a single message.
type Attachment struct {
	URL  string `json:"url" validate:"required,url,max=2048"`
	Type string `json:"type" validate:"required,oneof=image video file"`
	Name string `json:"name" validate:"required,max=255"`
}

// CreateConversationRequest starts (or reuses) a conversation with another user.
type CreateConversationRequest struct {
	OtherUserID      string  `json:"other_user_id" validate:"required,max=64"`
	ContextType      string  `json:"context_type" validate:"omitempty,oneof=job aupair visa event marketplace community lifestyle education support"`
	ContextID        *string `json:"context_id" validate:"omitempty,max=64"`
	RelatedItemTitle *string `json:"related_item_title" validate:"omitempty,max=255"`
	InitialMessage   *string `json:"initial_message" validate:"omitempty,max=4000"`
	MessageType      string  `json:"message_type" validate:"omitempty,oneof=user system"`
}

// CreateConversationResponse identifies the resolved conversation and the appended message, if any.
type CreateConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	MessageID      *uint  `json:"message_id,omitempty"`
	Created        bool   `json:"created"`
}

// SendMessageRequest appends a message to a conversation.
type SendMessageRequest struct {
	Content     string       `json:"content" validate:"max=4000"`
	Body        *MessageBody `json:"body" validate:"omitempty"`
	MessageType string       `json:"message_type" validate:"omitempty,oneof=user system admin"`
	Attachments []Attachment `json:"attachments" validate:"omitempty,max=1,dive"`
	MeetingID   *string      `json:"meeting_id" validate:"omitempty,max=36"`
}

// BlockConversationRequest toggles the moderation flag on a conversation.
type BlockConversationRequest struct {
	Blocked bool `json:"blocked"`
}

// MessageResponse is the serialized representation of a message.
type MessageResponse struct {
	ID             uint        `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	Body           MessageBody `json:"body"`
	MessageType    string      `json:"message_type"`
	Read           bool        `json:"read"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	MeetingID      *string     `json:"meeting_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// NewMessageResponse converts a model into a DTO.
func NewMessageResponse(message models.Message) MessageResponse {
	response := MessageResponse{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Content:        message.Content,
		Body:           PlainText(message.Content),
		MessageType:    message.MessageType,
		Read:           message.Read,
		MeetingID:      message.MeetingID,
		CreatedAt:      message.CreatedAt,
	}

	if message.ContentKey != nil && *message.ContentKey != "" {
		response.Body = LocalizedText(*message.ContentKey, map[string]interface{}(message.ContentParams))
	}

	if message.AttachmentURL != nil && *message.AttachmentURL != "" {
		attachment := Attachment{URL: *message.AttachmentURL, Type: "file"}
		if message.AttachmentType != nil {
			attachment.Type = *message.AttachmentType
		}
		if message.AttachmentName != nil {
			attachment.Name = *message.AttachmentName
		}
		response.Attachment = &attachment
	}

	return response
}

// NewMessageResponseSlice converts a slice of models into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// ParticipantSummary describes the other side of a conversation.
type ParticipantSummary struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// LastMessageSummary is the preview rendered in the inbox list.
type LastMessageSummary struct {
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	SenderID    string    `json:"sender_id"`
	MessageType string    `json:"message_type"`
}

// ConversationSummary is the denormalized inbox row: conversation, other participant,
// last message and unread count.
type ConversationSummary struct {
	ID               string              `json:"id"`
	ContextType      *string             `json:"context_type"`
	ContextID        *string             `json:"context_id"`
	RelatedItemTitle *string             `json:"related_item_title"`
	IsBlocked        bool                `json:"is_blocked"`
	BlockedBy        *string             `json:"blocked_by"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	LastMessageAt    time.Time           `json:"last_message_at"`
	OtherUser        ParticipantSummary  `json:"other_user"`
	LastMessage      *LastMessageSummary `json:"last_message,omitempty"`
	UnreadCount      int64               `json:"unread_count"`
}

// ScheduleMeetingRequest creates a meeting and announces it in the conversation.
type ScheduleMeetingRequest struct {
	ConversationID string    `json:"conversation_id" validate:"required,max=36"`
	RecipientID    string    `json:"recipient_id" validate:"required,max=64"`
	Title          string    `json:"title" validate:"required,min=1,max=255"`
	Description    string    `json:"description" validate:"max=4000"`
	StartTime      time.Time `json:"start_time" validate:"required"`
	EndTime        time.Time `json:"end_time" validate:"required"`
	Platform       *string   `json:"platform" validate:"omitempty,max=64"`
	Location       *string   `json:"location" validate:"omitempty,max=255"`
	MeetingLink    *string   `json:"meeting_link" validate:"omitempty,url"`
}

// MeetingResponse is the serialized representation of a meeting.
type MeetingResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	OrganizerID    string    `json:"organizer_id"`
	RecipientID    string    `json:"recipient_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"`
	MeetingLink    *string   `json:"meeting_link,omitempty"`
	Platform       *string   `json:"platform,omitempty"`
	Location       *string   `json:"location,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	AnnouncementID *uint     `json:"announcement_message_id,omitempty"`
}

// NewMeetingResponse converts a meeting model into a DTO.
func NewMeetingResponse(meeting models.Meeting) MeetingResponse {
	return MeetingResponse{
		ID:             meeting.ID,
		ConversationID: meeting.ConversationID,
		OrganizerID:    meeting.OrganizerID,
		RecipientID:    meeting.RecipientID,
		Title:          meeting.Title,
		Description:    meeting.Description,
		StartTime:      meeting.StartTime,
		EndTime:        meeting.EndTime,
		Status:         meeting.Status,
		MeetingLink:    meeting.MeetingLink,
		Platform:       meeting.Platform,
		Location:       meeting.Location,
		CreatedAt:      meeting.CreatedAt,
	}
}

// PresenceUpdateRequest is sent by clients on heartbeat and sign-out.
type PresenceUpdateRequest struct {
	Online bool `json:"online"`
}

// PresenceResponse reports a user's presence. Online accounts for stale heartbeats;
// IsOnline is the stored flag.
type PresenceResponse struct {
	UserID     string    `json:"user_id"`
	IsOnline   bool      `json:"is_online"`
	Online     bool      `json:"online"`
	LastSeenAt time.Time `json:"last_seen_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewPresenceResponse converts a presence row, marking it offline when the last heartbeat
// is older than staleAfter. A non-positive staleAfter disables the check.
func NewPresenceResponse(presence models.UserPresence, now time.Time, staleAfter time.Duration) PresenceResponse {
	online := presence.IsOnline
	if online && staleAfter > 0 && now.Sub(presence.LastSeenAt) > staleAfter {
		online = false
	}

	return PresenceResponse{
		UserID:     presence.UserID,
		IsOnline:   presence.IsOnline,
		Online:     online,
		LastSeenAt: presence.LastSeenAt,
		UpdatedAt:  presence.UpdatedAt,
	}
}

// AttachmentUploadResponse describes a stored attachment.
type AttachmentUploadResponse struct {
	Attachment
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
	Checksum  string `json:"checksum"`
}
