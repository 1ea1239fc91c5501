package service

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/models"
	"github.com/noah-isme/linkup-messaging-api/internal/repository"
)

var (
	// ErrConversationNotFound covers both missing conversations and conversations the caller
	// does not participate in.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrConversationBlocked indicates the conversation was blocked by a participant.
	ErrConversationBlocked = errors.New("conversation is blocked")
	// ErrMessageNotFound indicates the message does not exist or is not owned by the caller.
	ErrMessageNotFound = errors.New("message not found")
)

// MessageService appends to and reads from the per-conversation message log.
type MessageService interface {
	List(ctx context.Context, conversationID string) ([]dto.MessageResponse, error)
	Send(ctx context.Context, conversationID string, payload dto.SendMessageRequest) (dto.MessageResponse, error)
	MarkRead(ctx context.Context, conversationID string) (int64, error)
	Delete(ctx context.Context, conversationID string, messageID uint) error
	UploadAttachment(ctx context.Context, file *multipart.FileHeader) (dto.AttachmentUploadResponse, error)
}

// MessageDependencies groups the collaborators of the message service.
type MessageDependencies struct {
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Meetings      repository.MeetingRepository
	Uploads       UploadService
	Fanout        *MessageFanout
	Validator     *validator.Validate
}

type messageService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	meetings      repository.MeetingRepository
	uploads       UploadService
	fanout        *MessageFanout
	composer      *messageComposer
	logger        zerolog.Logger
	tracer        trace.Tracer
}

// NewMessageService constructs the message log service.
func NewMessageService(deps MessageDependencies, logger zerolog.Logger) MessageService {
	return &messageService{
		conversations: deps.Conversations,
		messages:      deps.Messages,
		meetings:      deps.Meetings,
		uploads:       deps.Uploads,
		fanout:        deps.Fanout,
		composer:      newMessageComposer(deps.Validator),
		logger:        logger.With().Str("component", "message_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/linkup-messaging-api/internal/service/message"),
	}
}

// List returns the visible log in creation order. Callers outside the conversation get an
// empty slice, indistinguishable from an empty conversation.
func (s *messageService) List(ctx context.Context, conversationID string) ([]dto.MessageResponse, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}

	conversationID = strings.TrimSpace(conversationID)
	member, err := s.conversations.IsParticipant(ctx, conversationID, identity.ID)
	if err != nil {
		return nil, err
	}
	if !member {
		return []dto.MessageResponse{}, nil
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	return dto.NewMessageResponseSlice(messages), nil
}

func (s *messageService) Send(ctx context.Context, conversationID string, payload dto.SendMessageRequest) (dto.MessageResponse, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	conversationID = strings.TrimSpace(conversationID)
	spanCtx, span := s.tracer.Start(ctx, "messages.send", trace.WithAttributes(
		attribute.String("message.conversation_id", conversationID),
		attribute.String("message.sender_id", identity.ID),
		attribute.String("message.type", payload.MessageType),
	))
	defer span.End()

	conversation, err := s.loadConversation(spanCtx, conversationID, identity.ID)
	if err != nil {
		return dto.MessageResponse{}, err
	}
	if conversation.IsBlocked {
		return dto.MessageResponse{}, ErrConversationBlocked
	}

	message, err := s.composer.compose(identity, conversation.ID, payload)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	if message.MeetingID != nil && s.meetings != nil {
		meeting, err := s.meetings.FindByID(spanCtx, *message.MeetingID)
		if err != nil || meeting.ConversationID != conversation.ID {
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				span.RecordError(err)
				return dto.MessageResponse{}, err
			}
			return dto.MessageResponse{}, ErrMeetingNotFound
		}
	}

	if err := s.messages.Append(spanCtx, &message); err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessageResponse{}, ErrConversationNotFound
		}
		return dto.MessageResponse{}, err
	}

	return s.fanout.Delivered(spanCtx, conversation, message), nil
}

// MarkRead flips every unread message from the other participant to read and returns how
// many rows changed.
func (s *messageService) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return 0, err
	}

	conversationID = strings.TrimSpace(conversationID)
	member, err := s.conversations.IsParticipant(ctx, conversationID, identity.ID)
	if err != nil {
		return 0, err
	}
	if !member {
		return 0, nil
	}

	spanCtx, span := s.tracer.Start(ctx, "messages.mark_read", trace.WithAttributes(
		attribute.String("message.conversation_id", conversationID),
		attribute.String("message.reader_id", identity.ID),
	))
	defer span.End()

	updated, err := s.messages.MarkRead(spanCtx, conversationID, identity.ID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return updated, nil
}

// Delete hides one of the caller's own messages from the log.
func (s *messageService) Delete(ctx context.Context, conversationID string, messageID uint) error {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return err
	}

	message, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	if message.ConversationID != strings.TrimSpace(conversationID) || message.SenderID != identity.ID {
		return ErrMessageNotFound
	}
	if message.IsDeleted {
		return nil
	}

	removed, err := s.messages.SoftDelete(ctx, messageID, identity.ID)
	if err != nil {
		return err
	}
	if !removed {
		s.logger.Debug().Uint("message_id", messageID).Msg("message already deleted")
	}
	return nil
}

func (s *messageService) UploadAttachment(ctx context.Context, file *multipart.FileHeader) (dto.AttachmentUploadResponse, error) {
	if _, err := CurrentIdentity(ctx); err != nil {
		return dto.AttachmentUploadResponse{}, err
	}
	if s.uploads == nil {
		return dto.AttachmentUploadResponse{}, ErrUploadStorageUnavailable
	}
	return s.uploads.Upload(ctx, file)
}

func (s *messageService) loadConversation(ctx context.Context, conversationID, userID string) (models.Conversation, error) {
	conversation, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Conversation{}, ErrConversationNotFound
		}
		return models.Conversation{}, err
	}

	for _, participant := range conversation.Participants {
		if participant.UserID == userID {
			return conversation, nil
		}
	}
	return models.Conversation{}, ErrConversationNotFound
}
