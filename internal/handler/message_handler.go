package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/service"
	"github.com/noah-isme/linkup-messaging-api/internal/utils"
)

// MessageHandler exposes the message log of a conversation and attachment uploads.
type MessageHandler struct {
	service     service.MessageService
	logger      zerolog.Logger
	sendLimiter fiber.Handler
}

// NewMessageHandler constructs a message handler. sendLimiter guards message creation and
// may be nil.
func NewMessageHandler(service service.MessageService, sendLimiter fiber.Handler, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		service:     service,
		logger:      logger.With().Str("component", "message_handler").Logger(),
		sendLimiter: sendLimiter,
	}
}

// Register binds message routes under the conversations group.
func (h *MessageHandler) Register(router fiber.Router) {
	router.Get("/:id/messages", h.list)
	if h.sendLimiter != nil {
		router.Post("/:id/messages", h.sendLimiter, h.send)
	} else {
		router.Post("/:id/messages", h.send)
	}
	router.Delete("/:id/messages/:messageId", h.delete)
	router.Post("/:id/read", h.markRead)
}

// RegisterAttachments binds the attachment upload route.
func (h *MessageHandler) RegisterAttachments(router fiber.Router) {
	router.Post("", h.upload)
}

func (h *MessageHandler) list(c *fiber.Ctx) error {
	messages, err := h.service.List(requestContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load messages")
	}
	return utils.SendSuccess(c, "messages", messages)
}

func (h *MessageHandler) send(c *fiber.Ctx) error {
	var payload dto.SendMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	message, err := h.service.Send(requestContext(c), c.Params("id"), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to send message")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *MessageHandler) delete(c *fiber.Ctx) error {
	messageID, err := strconv.ParseUint(c.Params("messageId"), 10, 64)
	if err != nil || messageID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	if err := h.service.Delete(requestContext(c), c.Params("id"), uint(messageID)); err != nil {
		return sendServiceError(c, h.logger, err, "failed to delete message")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *MessageHandler) markRead(c *fiber.Ctx) error {
	updated, err := h.service.MarkRead(requestContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to mark messages read")
	}
	return utils.SendSuccess(c, "messages marked read", fiber.Map{"updated": updated})
}

func (h *MessageHandler) upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	result, err := h.service.UploadAttachment(requestContext(c), file)
	if err != nil {
		return sendServiceError(c, h.logger, err, "upload failed")
	}
	return utils.SendSuccess(c, "upload successful", result)
}
