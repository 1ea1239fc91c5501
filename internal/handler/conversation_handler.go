package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/service"
	"github.com/noah-isme/linkup-messaging-api/internal/utils"
)

// ConversationHandler exposes the conversation directory.
type ConversationHandler struct {
	service service.ConversationService
	logger  zerolog.Logger
}

// NewConversationHandler constructs a conversation handler.
func NewConversationHandler(service service.ConversationService, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: service,
		logger:  logger.With().Str("component", "conversation_handler").Logger(),
	}
}

// Register binds conversation routes. "/existing" is registered before "/:id".
func (h *ConversationHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", h.create)
	router.Get("/existing", h.existing)
	router.Get("/:id", h.get)
	router.Delete("/:id", h.delete)
	router.Patch("/:id/block", h.block)
}

func (h *ConversationHandler) list(c *fiber.Ctx) error {
	conversations, err := h.service.List(requestContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to list conversations")
	}
	return utils.SendSuccess(c, "conversations", conversations)
}

func (h *ConversationHandler) create(c *fiber.Ctx) error {
	var payload dto.CreateConversationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.service.CreateOrGet(requestContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to open conversation")
	}

	status := fiber.StatusOK
	if result.Created {
		status = fiber.StatusCreated
	}
	return utils.SendSuccessWithStatus(c, status, "conversation ready", result)
}

func (h *ConversationHandler) existing(c *fiber.Ctx) error {
	otherUserID := strings.TrimSpace(c.Query("user_id"))
	if otherUserID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "user_id required")
	}

	id, found, err := h.service.FindExisting(requestContext(c), userIDFromContext(c), otherUserID)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to look up conversation")
	}
	if !found {
		return utils.SendError(c, fiber.StatusNotFound, service.ErrConversationNotFound.Error())
	}

	return utils.SendSuccess(c, "conversation found", fiber.Map{"conversation_id": id})
}

func (h *ConversationHandler) get(c *fiber.Ctx) error {
	summary, err := h.service.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load conversation")
	}
	return utils.SendSuccess(c, "conversation", summary)
}

func (h *ConversationHandler) delete(c *fiber.Ctx) error {
	if err := h.service.Delete(requestContext(c), c.Params("id")); err != nil {
		return sendServiceError(c, h.logger, err, "failed to delete conversation")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConversationHandler) block(c *fiber.Ctx) error {
	var payload dto.BlockConversationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	summary, err := h.service.SetBlocked(requestContext(c), c.Params("id"), payload.Blocked)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to update conversation")
	}
	return utils.SendSuccess(c, "conversation updated", summary)
}
