package handler

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/realtime"
	"github.com/noah-isme/linkup-messaging-api/internal/service"
	"github.com/noah-isme/linkup-messaging-api/internal/utils"
)

const (
	realtimeSendBuffer   = 32
	realtimePingInterval = 30 * time.Second
	realtimeWriteTimeout = 10 * time.Second
)

// RealtimeFrame is the JSON frame pushed to websocket clients.
type RealtimeFrame struct {
	Kind    string          `json:"kind"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// RealtimeHandler upgrades authenticated clients to the live update channel.
type RealtimeHandler struct {
	channels      *realtime.Channels
	conversations service.ConversationService
	logger        zerolog.Logger
}

// NewRealtimeHandler constructs the websocket handler.
func NewRealtimeHandler(channels *realtime.Channels, conversations service.ConversationService, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		channels:      channels,
		conversations: conversations,
		logger:        logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket upgrade. Topics are resolved and authorized before the
// upgrade so failures surface as regular HTTP errors.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		ctx := requestContext(c)
		topics, err := h.resolveTopics(ctx, c)
		if err != nil {
			return sendServiceError(c, h.logger, err, "failed to open live channel")
		}
		if len(topics) == 0 {
			return utils.SendError(c, fiber.StatusBadRequest, "conversation_id or presence_user_id required")
		}

		c.Locals("realtime_topics", topics)
		return c.Next()
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) resolveTopics(ctx context.Context, c *fiber.Ctx) ([]string, error) {
	if _, err := service.CurrentIdentity(ctx); err != nil {
		return nil, err
	}

	topics := make([]string, 0, 3)
	if conversationID := strings.TrimSpace(c.Query("conversation_id")); conversationID != "" {
		if _, err := h.conversations.Get(ctx, conversationID); err != nil {
			return nil, err
		}
		topics = append(topics, realtime.MessageTopic(conversationID))
	}
	if presenceUserID := strings.TrimSpace(c.Query("presence_user_id")); presenceUserID != "" {
		topics = append(topics, realtime.PresenceTopic(presenceUserID))
	}
	if c.QueryBool("notifications") {
		topics = append(topics, realtime.NotificationTopic(userIDFromContext(c)))
	}
	return topics, nil
}

type realtimeClient struct {
	conn   *websocket.Conn
	send   chan RealtimeFrame
	closed chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	topics, _ := conn.Locals("realtime_topics").([]string)
	userID, _ := conn.Locals("user_id").(string)

	client := &realtimeClient{
		conn:   conn,
		send:   make(chan RealtimeFrame, realtimeSendBuffer),
		closed: make(chan struct{}),
		logger: h.logger.With().Str("user_id", userID).Logger(),
	}

	subscriptions := make([]realtime.Subscription, 0, len(topics))
	for _, topic := range topics {
		subscriptions = append(subscriptions, h.channels.Broker().Subscribe(topic, client.push))
	}
	defer func() {
		for _, sub := range subscriptions {
			sub.Unsubscribe()
		}
	}()

	client.logger.Info().Strs("topics", topics).Msg("live channel connected")
	go client.writer()
	client.reader()
	client.logger.Info().Msg("live channel disconnected")
}

func (c *realtimeClient) push(event realtime.Event) {
	frame := RealtimeFrame{Kind: event.Kind, Topic: event.Topic, Payload: event.Payload}
	select {
	case <-c.closed:
	case c.send <- frame:
	default:
		c.logger.Warn().Str("topic", event.Topic).Msg("dropping live event for slow client")
	}
}

// reader drains client frames so control messages are processed; payloads are ignored.
func (c *realtimeClient) reader() {
	defer c.close()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logger.Debug().Err(err).Msg("live channel read loop ended")
			return
		}
	}
}

func (c *realtimeClient) writer() {
	defer c.close()

	ticker := time.NewTicker(realtimePingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(realtimeWriteTimeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Debug().Err(err).Msg("live channel write loop terminated")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(realtimeWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.logger.Debug().Err(err).Msg("live channel ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *realtimeClient) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}
