package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/linkup-messaging-api/internal/config"
	"github.com/noah-isme/linkup-messaging-api/internal/handler"
	"github.com/noah-isme/linkup-messaging-api/internal/middleware"
	"github.com/noah-isme/linkup-messaging-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ConversationHandler *handler.ConversationHandler
	MessageHandler      *handler.MessageHandler
	MeetingHandler      *handler.MeetingHandler
	PresenceHandler     *handler.PresenceHandler
	NotificationHandler *handler.NotificationHandler
	RealtimeHandler     *handler.RealtimeHandler
	HealthProbes        []handler.HealthProbe
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))
	api.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	conversations := api.Group("/conversations", jwtMiddleware)
	if deps.ConversationHandler != nil {
		deps.ConversationHandler.Register(conversations)
	}
	if deps.MessageHandler != nil {
		deps.MessageHandler.Register(conversations)
		deps.MessageHandler.RegisterAttachments(api.Group("/attachments", jwtMiddleware))
	}

	if deps.MeetingHandler != nil {
		deps.MeetingHandler.RegisterSchedule(conversations)
		deps.MeetingHandler.Register(api.Group("/meetings", jwtMiddleware))
	}

	if deps.PresenceHandler != nil {
		deps.PresenceHandler.Register(api.Group("/presence", jwtMiddleware))
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(api.Group("/notifications", jwtMiddleware))
		admin := api.Group("/admin/notifications", jwtMiddleware, middleware.RequireRole("admin"))
		deps.NotificationHandler.RegisterAdmin(admin)
	}

	if deps.RealtimeHandler != nil {
		deps.RealtimeHandler.Register(api.Group("/realtime", jwtMiddleware))
	}
}
