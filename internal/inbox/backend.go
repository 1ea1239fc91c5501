package inbox

import (
	"context"
	"mime/multipart"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/realtime"
	"github.com/noah-isme/linkup-messaging-api/internal/service"
)

// Backend is the part of the messaging core an inbox drives. Every call is made on behalf
// of the identity bound to ctx.
type Backend interface {
	Conversations(ctx context.Context) ([]dto.ConversationSummary, error)
	Messages(ctx context.Context, conversationID string) ([]dto.MessageResponse, error)
	Send(ctx context.Context, conversationID string, req dto.SendMessageRequest) (dto.MessageResponse, error)
	MarkRead(ctx context.Context, conversationID string) (int64, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	ScheduleMeeting(ctx context.Context, req dto.ScheduleMeetingRequest) (dto.MeetingResponse, error)
	UploadAttachment(ctx context.Context, file *multipart.FileHeader) (dto.AttachmentUploadResponse, error)
	Presence(ctx context.Context, userID string) (dto.PresenceResponse, error)
	WatchMessages(conversationID string, onMessage func(dto.MessageResponse)) realtime.Subscription
	WatchPresence(userID string, onChange func(dto.PresenceResponse)) realtime.Subscription
}

// LocalBackend serves an inbox from the in-process services.
type LocalBackend struct {
	conversations service.ConversationService
	messages      service.MessageService
	meetings      service.MeetingService
	presence      service.PresenceService
	channels      *realtime.Channels
}

// NewLocalBackend wires the services and live channels into a Backend.
func NewLocalBackend(conversations service.ConversationService, messages service.MessageService, meetings service.MeetingService, presence service.PresenceService, channels *realtime.Channels) *LocalBackend {
	return &LocalBackend{
		conversations: conversations,
		messages:      messages,
		meetings:      meetings,
		presence:      presence,
		channels:      channels,
	}
}

func (b *LocalBackend) Conversations(ctx context.Context) ([]dto.ConversationSummary, error) {
	return b.conversations.List(ctx)
}

func (b *LocalBackend) Messages(ctx context.Context, conversationID string) ([]dto.MessageResponse, error) {
	return b.messages.List(ctx, conversationID)
}

func (b *LocalBackend) Send(ctx context.Context, conversationID string, req dto.SendMessageRequest) (dto.MessageResponse, error) {
	return b.messages.Send(ctx, conversationID, req)
}

func (b *LocalBackend) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	return b.messages.MarkRead(ctx, conversationID)
}

func (b *LocalBackend) DeleteConversation(ctx context.Context, conversationID string) error {
	return b.conversations.Delete(ctx, conversationID)
}

func (b *LocalBackend) ScheduleMeeting(ctx context.Context, req dto.ScheduleMeetingRequest) (dto.MeetingResponse, error) {
	return b.meetings.Schedule(ctx, req)
}

func (b *LocalBackend) UploadAttachment(ctx context.Context, file *multipart.FileHeader) (dto.AttachmentUploadResponse, error) {
	return b.messages.UploadAttachment(ctx, file)
}

func (b *LocalBackend) Presence(ctx context.Context, userID string) (dto.PresenceResponse, error) {
	return b.presence.Get(ctx, userID)
}

func (b *LocalBackend) WatchMessages(conversationID string, onMessage func(dto.MessageResponse)) realtime.Subscription {
	return b.channels.SubscribeMessages(conversationID, onMessage)
}

func (b *LocalBackend) WatchPresence(userID string, onChange func(dto.PresenceResponse)) realtime.Subscription {
	return b.channels.SubscribePresence(userID, onChange)
}
