package service

import (
	"context"
	"errors"
	"strings"
	"time"

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

// PresenceService records the caller's online state and reads other users' state.
type PresenceService interface {
	SetOnline(ctx context.Context, online bool) (dto.PresenceResponse, error)
	Get(ctx context.Context, userID string) (dto.PresenceResponse, error)
}

// PresenceOptions tunes staleness. A heartbeat older than StaleAfter reads as offline.
type PresenceOptions struct {
	StaleAfter time.Duration
	Clock      func() time.Time
}

type presenceService struct {
	repo       repository.PresenceRepository
	channels   *realtime.Channels
	staleAfter time.Duration
	now        func() time.Time
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewPresenceService constructs the presence tracker.
func NewPresenceService(repo repository.PresenceRepository, channels *realtime.Channels, opts PresenceOptions, logger zerolog.Logger) PresenceService {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &presenceService{
		repo:       repo,
		channels:   channels,
		staleAfter: opts.StaleAfter,
		now:        clock,
		logger:     logger.With().Str("component", "presence_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/linkup-messaging-api/internal/service/presence"),
	}
}

// SetOnline upserts the caller's row with last_seen_at = now and announces the change.
func (s *presenceService) SetOnline(ctx context.Context, online bool) (dto.PresenceResponse, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return dto.PresenceResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "presence.upsert", trace.WithAttributes(
		attribute.String("presence.user_id", identity.ID),
		attribute.Bool("presence.online", online),
	))
	defer span.End()

	now := s.now().UTC()
	presence := models.UserPresence{
		UserID:     identity.ID,
		IsOnline:   online,
		LastSeenAt: now,
		UpdatedAt:  now,
	}
	if err := s.repo.Upsert(spanCtx, &presence); err != nil {
		span.RecordError(err)
		return dto.PresenceResponse{}, err
	}

	state := "offline"
	if online {
		state = "online"
	}
	observability.PresenceUpdates().WithLabelValues(state).Inc()

	response := dto.NewPresenceResponse(presence, now, s.staleAfter)
	if s.channels != nil {
		if err := s.channels.PublishPresence(spanCtx, response); err != nil {
			s.logger.Warn().Err(err).Str("user_id", identity.ID).Msg("failed to publish presence change")
		}
	}

	return response, nil
}

// Get returns the user's presence. Users that never reported presence read as offline.
func (s *presenceService) Get(ctx context.Context, userID string) (dto.PresenceResponse, error) {
	if _, err := CurrentIdentity(ctx); err != nil {
		return dto.PresenceResponse{}, err
	}

	userID = strings.TrimSpace(userID)
	presence, err := s.repo.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.PresenceResponse{UserID: userID}, nil
		}
		return dto.PresenceResponse{}, err
	}

	return dto.NewPresenceResponse(presence, s.now().UTC(), s.staleAfter), nil
}
