package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
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

const meetingTimeLayout = "Mon, Jan 2 2006 at 15:04 MST"

var (
	// ErrMeetingNotFound indicates the meeting does not exist or is not visible to the caller.
	ErrMeetingNotFound = errors.New("meeting not found")
	// ErrInvalidMeetingWindow indicates the start time is not before the end time.
	ErrInvalidMeetingWindow = errors.New("meeting start time must be before end time")
	// ErrInvalidMeetingRecipient indicates the recipient is not the other participant.
	ErrInvalidMeetingRecipient = errors.New("meeting recipient must be the other participant")
)

var (
	legacyPlatformToken = regexp.MustCompile(`\[Platform: (.*?)\]`)
	legacyLocationToken = regexp.MustCompile(`\[Location: (.*?)\]`)
)

// MeetingService schedules meetings and announces them in the conversation.
type MeetingService interface {
	Schedule(ctx context.Context, payload dto.ScheduleMeetingRequest) (dto.MeetingResponse, error)
	Get(ctx context.Context, meetingID string) (dto.MeetingResponse, error)
}

type meetingService struct {
	meetings      repository.MeetingRepository
	conversations repository.ConversationRepository
	messages      MessageService
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
}

// NewMeetingService constructs the meeting service. messages posts the announcement.
func NewMeetingService(meetings repository.MeetingRepository, conversations repository.ConversationRepository, messages MessageService, validate *validator.Validate, logger zerolog.Logger) MeetingService {
	if validate == nil {
		validate = validator.New()
	}
	return &meetingService{
		meetings:      meetings,
		conversations: conversations,
		messages:      messages,
		validator:     validate,
		logger:        logger.With().Str("component", "meeting_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/linkup-messaging-api/internal/service/meeting"),
	}
}

// Schedule stores the meeting and then posts a system message linking to it. When the
// announcement fails the meeting is kept and returned without an announcement id.
func (s *meetingService) Schedule(ctx context.Context, payload dto.ScheduleMeetingRequest) (dto.MeetingResponse, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return dto.MeetingResponse{}, err
	}

	payload.ConversationID = strings.TrimSpace(payload.ConversationID)
	payload.RecipientID = strings.TrimSpace(payload.RecipientID)
	payload.Title = strings.TrimSpace(payload.Title)
	if err := s.validator.Struct(payload); err != nil {
		return dto.MeetingResponse{}, err
	}
	if !payload.StartTime.Before(payload.EndTime) {
		return dto.MeetingResponse{}, ErrInvalidMeetingWindow
	}

	conversation, err := s.conversations.FindByID(ctx, payload.ConversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MeetingResponse{}, ErrConversationNotFound
		}
		return dto.MeetingResponse{}, err
	}
	if !isParticipant(conversation, identity.ID) {
		return dto.MeetingResponse{}, ErrConversationNotFound
	}
	if payload.RecipientID == identity.ID || !isParticipant(conversation, payload.RecipientID) {
		return dto.MeetingResponse{}, ErrInvalidMeetingRecipient
	}
	if conversation.IsBlocked {
		return dto.MeetingResponse{}, ErrConversationBlocked
	}

	spanCtx, span := s.tracer.Start(ctx, "meetings.schedule", trace.WithAttributes(
		attribute.String("meeting.conversation_id", conversation.ID),
		attribute.String("meeting.organizer_id", identity.ID),
	))
	defer span.End()

	meeting := models.Meeting{
		ConversationID: conversation.ID,
		OrganizerID:    identity.ID,
		RecipientID:    payload.RecipientID,
		Title:          payload.Title,
		Description:    strings.TrimSpace(payload.Description),
		StartTime:      payload.StartTime.UTC(),
		EndTime:        payload.EndTime.UTC(),
		Status:         models.MeetingPending,
		MeetingLink:    trimmedOrNil(payload.MeetingLink),
		Platform:       trimmedOrNil(payload.Platform),
		Location:       trimmedOrNil(payload.Location),
	}
	if err := s.meetings.Create(spanCtx, &meeting); err != nil {
		span.RecordError(err)
		return dto.MeetingResponse{}, err
	}

	response := dto.NewMeetingResponse(meeting)

	meetingID := meeting.ID
	announcement, err := s.messages.Send(spanCtx, conversation.ID, dto.SendMessageRequest{
		Content:     announcementText(meeting),
		MessageType: models.MessageTypeSystem,
		MeetingID:   &meetingID,
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Str("meeting_id", meeting.ID).Msg("meeting stored but announcement message failed")
		return response, nil
	}

	id := announcement.ID
	response.AnnouncementID = &id
	return response, nil
}

// Get returns the meeting to either of its two participants.
func (s *meetingService) Get(ctx context.Context, meetingID string) (dto.MeetingResponse, error) {
	identity, err := CurrentIdentity(ctx)
	if err != nil {
		return dto.MeetingResponse{}, err
	}

	meeting, err := s.meetings.FindByID(ctx, strings.TrimSpace(meetingID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MeetingResponse{}, ErrMeetingNotFound
		}
		return dto.MeetingResponse{}, err
	}
	if meeting.OrganizerID != identity.ID && meeting.RecipientID != identity.ID {
		return dto.MeetingResponse{}, ErrMeetingNotFound
	}

	return dto.NewMeetingResponse(unpackLegacyMeeting(meeting)), nil
}

func announcementText(meeting models.Meeting) string {
	text := fmt.Sprintf("Scheduled a meeting: %s on %s", meeting.Title, meeting.StartTime.UTC().Format(meetingTimeLayout))
	if meeting.Platform != nil {
		text += " via " + *meeting.Platform
	}
	return text
}

// unpackLegacyMeeting moves [Platform: X] and [Location: Y] tokens written by older clients
// out of the description into their columns. Columns that are already set win.
func unpackLegacyMeeting(meeting models.Meeting) models.Meeting {
	description := meeting.Description

	if meeting.Platform == nil {
		if match := legacyPlatformToken.FindStringSubmatch(description); match != nil {
			platform := strings.TrimSpace(match[1])
			meeting.Platform = &platform
			description = strings.Replace(description, match[0], "", 1)
		}
	}
	if meeting.Location == nil {
		if match := legacyLocationToken.FindStringSubmatch(description); match != nil {
			location := strings.TrimSpace(match[1])
			meeting.Location = &location
			description = strings.Replace(description, match[0], "", 1)
		}
	}

	meeting.Description = strings.TrimSpace(description)
	return meeting
}
