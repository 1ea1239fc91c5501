package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/service"
	"github.com/noah-isme/linkup-messaging-api/internal/utils"
)

// PresenceHandler records heartbeats and serves presence reads.
type PresenceHandler struct {
	service service.PresenceService
	logger  zerolog.Logger
}

// NewPresenceHandler constructs a presence handler.
func NewPresenceHandler(service service.PresenceService, logger zerolog.Logger) *PresenceHandler {
	return &PresenceHandler{
		service: service,
		logger:  logger.With().Str("component", "presence_handler").Logger(),
	}
}

// Register binds presence routes.
func (h *PresenceHandler) Register(router fiber.Router) {
	router.Put("", h.update)
	router.Get("/:userId", h.get)
}

func (h *PresenceHandler) update(c *fiber.Ctx) error {
	payload := dto.PresenceUpdateRequest{Online: true}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
		}
	}

	presence, err := h.service.SetOnline(requestContext(c), payload.Online)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to update presence")
	}
	return utils.SendSuccess(c, "presence updated", presence)
}

func (h *PresenceHandler) get(c *fiber.Ctx) error {
	presence, err := h.service.Get(requestContext(c), c.Params("userId"))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load presence")
	}
	return utils.SendSuccess(c, "presence", presence)
}
