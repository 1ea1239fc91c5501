package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/models"
	"github.com/noah-isme/linkup-messaging-api/internal/observability"
	"github.com/noah-isme/linkup-messaging-api/internal/realtime"
	"github.com/noah-isme/linkup-messaging-api/internal/repository"
)

const notificationBufferSize = 16

var (
	// ErrNotificationNotFound indicates the notification does not exist for the caller.
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrNotificationEmpty indicates nothing was left of the title or message after sanitization.
	ErrNotificationEmpty = errors.New("notification title and message must not be empty after sanitization")
)

// NotificationService stores, streams and counts notifications for the current user.
type NotificationService interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationPublishResult, error)
	List(ctx context.Context, limit, offset int) ([]dto.NotificationResponse, error)
	ListUnread(ctx context.Context) ([]dto.NotificationResponse, error)
	UnreadCount(ctx context.Context) (int64, error)
	UnreadMessageCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, id string) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error
	Preferences(ctx context.Context) (dto.NotificationPreferencesResponse, error)
	UpdatePreferences(ctx context.Context, payload dto.NotificationPreferencesUpdateRequest) (dto.NotificationPreferencesResponse, error)
	Subscribe(ctx context.Context) (<-chan dto.NotificationResponse, func(), error)
}

// NotificationDependencies groups the collaborators of the notification service.
type NotificationDependencies struct {
	Notifications repository.NotificationRepository
	Preferences   repository.NotificationPreferenceRepository
	Messages      repository.MessageRepository
	Profiles      repository.ProfileRepository
	Channels      *realtime.Channels
	Email         EmailDispatcher
	Validator     *validator.Validate
}

type notificationService struct {
	repo        repository.NotificationRepository
	preferences repository.NotificationPreferenceRepository
	messages    repository.MessageRepository
	profiles    repository.ProfileRepository
	channels    *realtime.Channels
	email       EmailDispatcher
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
}

// NewNotificationService constructs a notification service.
func NewNotificationService(deps NotificationDependencies, logger zerolog.Logger) NotificationService {
	validate := deps.Validator
	if validate == nil {
		validate = validator.New()
	}

	return &notificationService{
		repo:        deps.Notifications,
		preferences: deps.Preferences,
		messages:    deps.Messages,
		profiles:    deps.Profiles,
		channels:    deps.Channels,
		email:       deps.Email,
		validator:   validate,
		logger:      logger.With().Str("component", "notification_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/linkup-messaging-api/internal/service/notification"),
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

// Publish creates the in-app notification when the recipient allows the category, then
// queues an email when requested. Email failures never fail the call.
func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationPublishResult, error) {
	payload.UserID = strings.TrimSpace(payload.UserID)
	payload.Type = strings.TrimSpace(payload.Type)
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationPublishResult{}, err
	}

	title := plainText(s.sanitizer, payload.Title)
	message := plainText(s.sanitizer, payload.Message)
	if title == "" || message == "" {
		return dto.NotificationPublishResult{}, ErrNotificationEmpty
	}

	attrs := []attribute.KeyValue{
		attribute.String("notification.user_id", payload.UserID),
		attribute.String("notification.type", payload.Type),
	}
	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(attrs...))
	defer span.End()

	preference := models.DefaultNotificationPreference(payload.UserID)
	if s.preferences != nil {
		stored, found, err := s.preferences.Find(spanCtx, payload.UserID)
		if err != nil {
			span.RecordError(err)
			return dto.NotificationPublishResult{}, err
		}
		if found {
			preference = stored
		}
	}

	var result dto.NotificationPublishResult
	if preference.AllowsInApp(payload.Type) {
		model := models.Notification{
			UserID:   payload.UserID,
			Type:     payload.Type,
			Title:    title,
			Message:  message,
			LinkURL:  payload.LinkURL,
			Metadata: payload.Metadata,
		}
		if model.Metadata == nil {
			model.Metadata = map[string]interface{}{}
		}

		if err := s.repo.Create(spanCtx, &model); err != nil {
			span.RecordError(err)
			return dto.NotificationPublishResult{}, err
		}

		response := dto.NewNotificationResponse(model)
		result.Notification = &response
		result.InApp = true
		observability.NotificationsPublishedTotal().WithLabelValues(payload.Type).Inc()

		if s.channels != nil {
			if err := s.channels.PublishNotification(spanCtx, response); err != nil {
				s.logger.Warn().Err(err).Msg("failed to publish notification to realtime bus")
			}
		}
	}

	if payload.SendEmail && preference.AllowsEmail(payload.Type) {
		result.EmailQueued = s.sendEmail(spanCtx, payload.UserID, payload.UserEmail, title, message)
	}

	return result, nil
}

func (s *notificationService) sendEmail(ctx context.Context, userID, address, subject, text string) bool {
	if s.email == nil {
		return false
	}

	address = strings.TrimSpace(address)
	if address == "" && s.profiles != nil {
		profile, err := s.profiles.FindByID(ctx, userID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to resolve email address")
			}
			return false
		}
		address = strings.TrimSpace(profile.Email)
	}
	if address == "" {
		return false
	}

	err := s.email.SendEmail(ctx, EmailMessage{
		To:      address,
		Subject: subject,
		Text:    text,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to dispatch notification email")
		return false
	}
	return true
}

func (s *notificationService) List(ctx context.Context, limit, offset int) ([]dto.NotificationResponse, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}

	notifications, err := s.repo.ListByUser(ctx, identity.ID, false, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) ListUnread(ctx context.Context) ([]dto.NotificationResponse, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}

	notifications, err := s.repo.ListByUser(ctx, identity.ID, true, 100, 0)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) UnreadCount(ctx context.Context) (int64, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return 0, err
	}
	return s.repo.CountUnread(ctx, identity.ID)
}

func (s *notificationService) UnreadMessageCount(ctx context.Context) (int64, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return 0, err
	}
	if s.messages == nil {
		return 0, nil
	}
	return s.messages.CountUnreadForUser(ctx, identity.ID)
}

func (s *notificationService) MarkRead(ctx context.Context, id string) (dto.NotificationResponse, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return dto.NotificationResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.String("notification.user_id", identity.ID),
		attribute.String("notification.id", id),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, strings.TrimSpace(id), identity.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NotificationResponse{}, ErrNotificationNotFound
		}
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context) (int64, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return 0, err
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_all_read", trace.WithAttributes(
		attribute.String("notification.user_id", identity.ID),
	))
	defer span.End()

	updated, err := s.repo.MarkAllRead(spanCtx, identity.ID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return updated, nil
}

func (s *notificationService) Delete(ctx context.Context, id string) error {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return err
	}

	removed, err := s.repo.Delete(ctx, strings.TrimSpace(id), identity.ID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *notificationService) Preferences(ctx context.Context) (dto.NotificationPreferencesResponse, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return dto.NotificationPreferencesResponse{}, err
	}

	preference, err := s.preferences.FindOrCreate(ctx, identity.ID)
	if err != nil {
		return dto.NotificationPreferencesResponse{}, err
	}
	return dto.NewNotificationPreferencesResponse(preference), nil
}

func (s *notificationService) UpdatePreferences(ctx context.Context, payload dto.NotificationPreferencesUpdateRequest) (dto.NotificationPreferencesResponse, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return dto.NotificationPreferencesResponse{}, err
	}

	preference, err := s.preferences.FindOrCreate(ctx, identity.ID)
	if err != nil {
		return dto.NotificationPreferencesResponse{}, err
	}

	payload.Apply(&preference)
	if err := s.preferences.Save(ctx, &preference); err != nil {
		return dto.NotificationPreferencesResponse{}, fmt.Errorf("save notification preferences: %w", err)
	}

	return dto.NewNotificationPreferencesResponse(preference), nil
}

// Subscribe streams notifications created for the caller until the returned cleanup runs.
func (s *notificationService) Subscribe(ctx context.Context) (<-chan dto.NotificationResponse, func(), error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return nil, nil, err
	}
	if s.channels == nil {
		return nil, nil, errors.New("live notifications are not configured")
	}

	stream := make(chan dto.NotificationResponse, notificationBufferSize)
	sub := s.channels.SubscribeNotifications(identity.ID, func(notification dto.NotificationResponse) {
		select {
		case stream <- notification:
		default:
			s.logger.Warn().Str("user_id", identity.ID).Msg("dropping notification for slow stream consumer")
		}
	})

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			sub.Unsubscribe()
			close(stream)
		})
	}

	return stream, cleanup, nil
}

func plainText(policy *bluemonday.Policy, input string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(input)))
}
