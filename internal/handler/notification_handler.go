package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/service"
	"github.com/noah-isme/linkup-messaging-api/internal/utils"
)

// NotificationHandler manages SSE notification streams and CRUD operations.
type NotificationHandler struct {
	service   service.NotificationService
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewNotificationHandler constructs a handler instance. keepAlive is the interval between
// SSE comment frames.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger, keepAlive time.Duration) *NotificationHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &NotificationHandler{
		service:   service,
		logger:    logger.With().Str("component", "notification_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/unread-count", h.unreadCount)
	router.Get("/stream", h.stream)
	router.Get("/preferences", h.preferences)
	router.Put("/preferences", h.updatePreferences)
	router.Post("/read-all", h.markAllRead)
	router.Patch("/:id/read", h.markRead)
	router.Delete("/:id", h.delete)
}

// RegisterAdmin binds the publish route used by other services and operators.
func (h *NotificationHandler) RegisterAdmin(router fiber.Router) {
	router.Post("/", h.publish)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	ctx := requestContext(c)

	if c.QueryBool("unread") {
		notifications, err := h.service.ListUnread(ctx)
		if err != nil {
			return sendServiceError(c, h.logger, err, "failed to load notifications")
		}
		return utils.SendSuccess(c, "notifications", notifications)
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	notifications, err := h.service.List(ctx, limit, offset)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load notifications")
	}

	return utils.OK(c, notifications, "notifications", fiber.Map{"limit": limit, "offset": offset})
}

func (h *NotificationHandler) unreadCount(c *fiber.Ctx) error {
	ctx := requestContext(c)

	notifications, err := h.service.UnreadCount(ctx)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to count notifications")
	}
	messages, err := h.service.UnreadMessageCount(ctx)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to count messages")
	}

	return utils.SendSuccess(c, "unread counts", dto.UnreadCountResponse{
		Notifications: notifications,
		Messages:      messages,
	})
}

func (h *NotificationHandler) stream(c *fiber.Ctx) error {
	stream, cleanup, err := h.service.Subscribe(requestContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to open notification stream")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	userID := userIDFromContext(c)
	logger := h.logger
	keepAlive := h.keepAlive

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cleanup()

		if err := writeKeepAlive(w); err != nil {
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case notification, ok := <-stream:
				if !ok {
					return
				}
				if err := writeNotificationEvent(w, notification); err != nil {
					logger.Debug().Err(err).Str("user_id", userID).Msg("failed to write notification event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					logger.Debug().Err(err).Str("user_id", userID).Msg("notification stream closed")
					return
				}
			}
		}
	})

	return nil
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	notification, err := h.service.MarkRead(requestContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to update notification")
	}
	return utils.SendSuccess(c, "notification updated", notification)
}

func (h *NotificationHandler) markAllRead(c *fiber.Ctx) error {
	updated, err := h.service.MarkAllRead(requestContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to update notifications")
	}
	return utils.SendSuccess(c, "notifications updated", fiber.Map{"updated": updated})
}

func (h *NotificationHandler) delete(c *fiber.Ctx) error {
	if err := h.service.Delete(requestContext(c), c.Params("id")); err != nil {
		return sendServiceError(c, h.logger, err, "failed to delete notification")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) preferences(c *fiber.Ctx) error {
	preferences, err := h.service.Preferences(requestContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load preferences")
	}
	return utils.SendSuccess(c, "notification preferences", preferences)
}

func (h *NotificationHandler) updatePreferences(c *fiber.Ctx) error {
	var payload dto.NotificationPreferencesUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	preferences, err := h.service.UpdatePreferences(requestContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to update preferences")
	}
	return utils.SendSuccess(c, "notification preferences updated", preferences)
}

func (h *NotificationHandler) publish(c *fiber.Ctx) error {
	var payload dto.NotificationCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.service.Publish(requestContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to publish notification")
	}

	status := fiber.StatusAccepted
	if result.InApp {
		status = fiber.StatusCreated
	}
	return utils.SendSuccessWithStatus(c, status, "notification published", result)
}

func writeNotificationEvent(w *bufio.Writer, notification dto.NotificationResponse) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "id: %s\nevent: notification\n", notification.ID); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
