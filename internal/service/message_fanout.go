package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/models"
	"github.com/noah-isme/linkup-messaging-api/internal/observability"
	"github.com/noah-isme/linkup-messaging-api/internal/realtime"
)

const notificationPreviewLength = 140

// MessageFanout runs the side effects of a stored message: live delivery to subscribers
// and a best-effort notification for the recipient.
type MessageFanout struct {
	channels      *realtime.Channels
	notifications NotificationService
	logger        zerolog.Logger
}

// NewMessageFanout constructs the post-store pipeline. Either collaborator may be nil.
func NewMessageFanout(channels *realtime.Channels, notifications NotificationService, logger zerolog.Logger) *MessageFanout {
	return &MessageFanout{
		channels:      channels,
		notifications: notifications,
		logger:        logger.With().Str("component", "message_fanout").Logger(),
	}
}

// Delivered publishes the message and notifies the other participant of user messages.
func (f *MessageFanout) Delivered(ctx context.Context, conversation models.Conversation, message models.Message) dto.MessageResponse {
	response := dto.NewMessageResponse(message)
	observability.MessagesSent().WithLabelValues(message.MessageType).Inc()

	if f == nil {
		return response
	}

	if f.channels != nil {
		if err := f.channels.PublishMessage(ctx, response); err != nil {
			f.logger.Warn().Err(err).Str("conversation_id", conversation.ID).Msg("failed to publish message to realtime bus")
		}
	}

	if f.notifications == nil || message.MessageType != models.MessageTypeUser {
		return response
	}

	recipient := otherParticipant(conversation, message.SenderID)
	if recipient == "" {
		return response
	}

	link := fmt.Sprintf("/messages?conversation=%s", conversation.ID)
	_, err := f.notifications.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  recipient,
		Type:    models.NotificationMessages,
		Title:   notificationTitle(conversation),
		Message: preview(message.Content),
		LinkURL: &link,
		Metadata: map[string]interface{}{
			"conversation_id": conversation.ID,
			"message_id":      message.ID,
			"sender_id":       message.SenderID,
		},
		SendEmail: true,
	})
	if err != nil {
		f.logger.Warn().Err(err).Str("conversation_id", conversation.ID).Msg("failed to notify message recipient")
	}

	return response
}

func otherParticipant(conversation models.Conversation, userID string) string {
	for _, participant := range conversation.Participants {
		if participant.UserID != userID {
			return participant.UserID
		}
	}
	return ""
}

func notificationTitle(conversation models.Conversation) string {
	if conversation.RelatedItemTitle != nil && strings.TrimSpace(*conversation.RelatedItemTitle) != "" {
		return "New message about " + strings.TrimSpace(*conversation.RelatedItemTitle)
	}
	return "New message"
}

func preview(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= notificationPreviewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:notificationPreviewLength]) + "..."
}
