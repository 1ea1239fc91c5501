package service

import (
	"context"
	"errors"
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
	// ErrSelfConversation indicates a user tried to open a conversation with themselves.
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	// ErrNotBlocker indicates someone other than the blocking participant tried to unblock.
	ErrNotBlocker = errors.New("only the participant who blocked the conversation can unblock it")
)

// ConversationService resolves, lists and removes conversations for the current user.
type ConversationService interface {
	FindExisting(ctx context.Context, userA, userB string) (string, bool, error)
	CreateOrGet(ctx context.Context, payload dto.CreateConversationRequest) (dto.CreateConversationResponse, error)
	Delete(ctx context.Context, conversationID string) error
	List(ctx context.Context) ([]dto.ConversationSummary, error)
	Get(ctx context.Context, conversationID string) (dto.ConversationSummary, error)
	SetBlocked(ctx context.Context, conversationID string, blocked bool) (dto.ConversationSummary, error)
}

// ConversationDependencies groups the collaborators of the conversation service.
type ConversationDependencies struct {
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Fanout        *MessageFanout
	Validator     *validator.Validate
}

type conversationService struct {
	repo      repository.ConversationRepository
	messages  repository.MessageRepository
	fanout    *MessageFanout
	composer  *messageComposer
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewConversationService constructs the conversation directory.
func NewConversationService(deps ConversationDependencies, logger zerolog.Logger) ConversationService {
	validate := deps.Validator
	if validate == nil {
		validate = validator.New()
	}

	return &conversationService{
		repo:      deps.Conversations,
		messages:  deps.Messages,
		fanout:    deps.Fanout,
		composer:  newMessageComposer(validate),
		validator: validate,
		logger:    logger.With().Str("component", "conversation_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/linkup-messaging-api/internal/service/conversation"),
	}
}

// FindExisting returns the conversation shared by the pair. Context is ignored: there is
// one thread per pair. The caller must be one of the two users.
func (s *conversationService) FindExisting(ctx context.Context, userA, userB string) (string, bool, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return "", false, err
	}

	userA = strings.TrimSpace(userA)
	userB = strings.TrimSpace(userB)
	if userA == "" || userB == "" || userA == userB {
		return "", false, nil
	}
	if identity.ID != userA && identity.ID != userB {
		return "", false, nil
	}

	conversation, err := s.repo.FindBetween(ctx, userA, userB)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return conversation.ID, true, nil
}

// CreateOrGet reuses the pair's conversation or creates it together with its participants
// and optional first message in one transaction. A concurrent creation by the other
// participant surfaces as a duplicate pair key and resolves to the winner's row.
func (s *conversationService) CreateOrGet(ctx context.Context, payload dto.CreateConversationRequest) (dto.CreateConversationResponse, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return dto.CreateConversationResponse{}, err
	}

	payload.OtherUserID = strings.TrimSpace(payload.OtherUserID)
	if err := s.validator.Struct(payload); err != nil {
		return dto.CreateConversationResponse{}, err
	}
	if payload.OtherUserID == identity.ID {
		return dto.CreateConversationResponse{}, ErrSelfConversation
	}

	spanCtx, span := s.tracer.Start(ctx, "conversations.create_or_get", trace.WithAttributes(
		attribute.String("conversation.initiator_id", identity.ID),
		attribute.String("conversation.other_user_id", payload.OtherUserID),
		attribute.String("conversation.context_type", payload.ContextType),
	))
	defer span.End()

	var initial *models.Message
	if payload.InitialMessage != nil && strings.TrimSpace(*payload.InitialMessage) != "" {
		message, err := s.composer.compose(identity, "", dto.SendMessageRequest{
			Content:     *payload.InitialMessage,
			MessageType: payload.MessageType,
		})
		if err != nil {
			return dto.CreateConversationResponse{}, err
		}
		initial = &message
	}

	existing, err := s.repo.FindBetween(spanCtx, identity.ID, payload.OtherUserID)
	switch {
	case err == nil:
		return s.appendInitial(spanCtx, existing, initial)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		span.RecordError(err)
		return dto.CreateConversationResponse{}, err
	}

	conversation := models.Conversation{
		ContextType:      trimmedOrNil(&payload.ContextType),
		ContextID:        trimmedOrNil(payload.ContextID),
		RelatedItemTitle: trimmedOrNil(payload.RelatedItemTitle),
	}
	if initial != nil {
		conversation.LastMessageAt = initial.CreatedAt
	}

	err = s.repo.Create(spanCtx, &conversation, []string{identity.ID, payload.OtherUserID}, initial)
	if err != nil {
		if !repository.IsDuplicateKey(err) {
			span.RecordError(err)
			return dto.CreateConversationResponse{}, err
		}

		s.logger.Debug().Str("pair", repository.PairKey(identity.ID, payload.OtherUserID)).Msg("conversation created concurrently, reusing existing row")
		existing, findErr := s.repo.FindBetween(spanCtx, identity.ID, payload.OtherUserID)
		if findErr != nil {
			span.RecordError(findErr)
			return dto.CreateConversationResponse{}, findErr
		}
		if initial != nil {
			initial.ID = 0
			initial.ConversationID = ""
		}
		return s.appendInitial(spanCtx, existing, initial)
	}

	response := dto.CreateConversationResponse{ConversationID: conversation.ID, Created: true}
	if initial != nil {
		s.fanout.Delivered(spanCtx, conversation, *initial)
		id := initial.ID
		response.MessageID = &id
	}
	return response, nil
}

func (s *conversationService) appendInitial(ctx context.Context, conversation models.Conversation, initial *models.Message) (dto.CreateConversationResponse, error) {
	response := dto.CreateConversationResponse{ConversationID: conversation.ID}
	if initial == nil {
		return response, nil
	}
	if conversation.IsBlocked {
		return response, ErrConversationBlocked
	}

	initial.ConversationID = conversation.ID
	if err := s.messages.Append(ctx, initial); err != nil {
		return response, err
	}

	s.fanout.Delivered(ctx, conversation, *initial)
	id := initial.ID
	response.MessageID = &id
	return response, nil
}

// Delete removes the conversation, its participants, meetings and messages. Deleting a
// missing conversation, or one the caller is not part of, is a no-op.
func (s *conversationService) Delete(ctx context.Context, conversationID string) error {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return err
	}

	conversationID = strings.TrimSpace(conversationID)
	member, err := s.repo.IsParticipant(ctx, conversationID, identity.ID)
	if err != nil {
		return err
	}
	if !member {
		return nil
	}

	spanCtx, span := s.tracer.Start(ctx, "conversations.delete", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("conversation.deleted_by", identity.ID),
	))
	defer span.End()

	removed, err := s.repo.Delete(spanCtx, conversationID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if removed {
		s.logger.Info().Str("conversation_id", conversationID).Str("user_id", identity.ID).Msg("conversation deleted")
	}
	return nil
}

func (s *conversationService) List(ctx context.Context) ([]dto.ConversationSummary, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}

	overviews, err := s.repo.ListForUser(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	out := make([]dto.ConversationSummary, 0, len(overviews))
	for _, overview := range overviews {
		out = append(out, newConversationSummary(overview))
	}
	return out, nil
}

func (s *conversationService) Get(ctx context.Context, conversationID string) (dto.ConversationSummary, error) {
	summaries, err := s.List(ctx)
	if err != nil {
		return dto.ConversationSummary{}, err
	}

	conversationID = strings.TrimSpace(conversationID)
	for _, summary := range summaries {
		if summary.ID == conversationID {
			return summary, nil
		}
	}
	return dto.ConversationSummary{}, ErrConversationNotFound
}

// SetBlocked toggles the moderation flag. Only the participant who blocked may unblock.
func (s *conversationService) SetBlocked(ctx context.Context, conversationID string, blocked bool) (dto.ConversationSummary, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return dto.ConversationSummary{}, err
	}

	conversationID = strings.TrimSpace(conversationID)
	conversation, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ConversationSummary{}, ErrConversationNotFound
		}
		return dto.ConversationSummary{}, err
	}
	if !isParticipant(conversation, identity.ID) {
		return dto.ConversationSummary{}, ErrConversationNotFound
	}

	if !blocked && conversation.IsBlocked && conversation.BlockedBy != nil && *conversation.BlockedBy != identity.ID && !identity.IsAdmin() {
		return dto.ConversationSummary{}, ErrNotBlocker
	}

	spanCtx, span := s.tracer.Start(ctx, "conversations.set_blocked", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Bool("conversation.blocked", blocked),
	))
	defer span.End()

	blockedBy := identity.ID
	if err := s.repo.SetBlocked(spanCtx, conversationID, blocked, &blockedBy); err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ConversationSummary{}, ErrConversationNotFound
		}
		return dto.ConversationSummary{}, err
	}

	return s.Get(ctx, conversationID)
}

func isParticipant(conversation models.Conversation, userID string) bool {
	for _, participant := range conversation.Participants {
		if participant.UserID == userID {
			return true
		}
	}
	return false
}

func newConversationSummary(overview repository.ConversationOverview) dto.ConversationSummary {
	conversation := overview.Conversation
	summary := dto.ConversationSummary{
		ID:               conversation.ID,
		ContextType:      conversation.ContextType,
		ContextID:        conversation.ContextID,
		RelatedItemTitle: conversation.RelatedItemTitle,
		IsBlocked:        conversation.IsBlocked,
		BlockedBy:        conversation.BlockedBy,
		CreatedAt:        conversation.CreatedAt,
		UpdatedAt:        conversation.UpdatedAt,
		LastMessageAt:    conversation.LastMessageAt,
		OtherUser: dto.ParticipantSummary{
			ID:        overview.OtherUser.ID,
			Email:     overview.OtherUser.Email,
			FullName:  overview.OtherUser.FullName,
			AvatarURL: overview.OtherUser.AvatarURL,
		},
		UnreadCount: overview.UnreadCount,
	}

	if overview.LastMessage != nil {
		summary.LastMessage = &dto.LastMessageSummary{
			Content:     overview.LastMessage.Content,
			CreatedAt:   overview.LastMessage.CreatedAt,
			SenderID:    overview.LastMessage.SenderID,
			MessageType: overview.LastMessage.MessageType,
		}
	}

	return summary
}
