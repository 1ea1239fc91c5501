package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/service"
	"github.com/noah-isme/linkup-messaging-api/internal/utils"
)

// MeetingHandler schedules and reads meetings.
type MeetingHandler struct {
	service service.MeetingService
	logger  zerolog.Logger
}

// NewMeetingHandler constructs a meeting handler.
func NewMeetingHandler(service service.MeetingService, logger zerolog.Logger) *MeetingHandler {
	return &MeetingHandler{
		service: service,
		logger:  logger.With().Str("component", "meeting_handler").Logger(),
	}
}

// RegisterSchedule binds the scheduling route under the conversations group.
func (h *MeetingHandler) RegisterSchedule(router fiber.Router) {
	router.Post("/:id/meetings", h.schedule)
}

// Register binds meeting reads.
func (h *MeetingHandler) Register(router fiber.Router) {
	router.Get("/:id", h.get)
}

func (h *MeetingHandler) schedule(c *fiber.Ctx) error {
	var payload dto.ScheduleMeetingRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	payload.ConversationID = c.Params("id")

	meeting, err := h.service.Schedule(requestContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to schedule meeting")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "meeting scheduled", meeting)
}

func (h *MeetingHandler) get(c *fiber.Ctx) error {
	meeting, err := h.service.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load meeting")
	}
	return utils.SendSuccess(c, "meeting", meeting)
}
