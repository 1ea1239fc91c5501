package realtime

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
)

// Event kinds carried on the live update channel.
const (
	KindMessageCreated      = "message.created"
	KindPresenceUpdated     = "presence.updated"
	KindNotificationCreated = "notification.created"
)

// MessageTopic is the topic carrying inserts for one conversation.
func MessageTopic(conversationID string) string {
	return "messages:" + conversationID
}

// PresenceTopic is the topic carrying presence changes for one user.
func PresenceTopic(userID string) string {
	return "presence:" + userID
}

// NotificationTopic is the topic carrying notification inserts for one user.
func NotificationTopic(userID string) string {
	return "notifications:" + userID
}

// Channels exposes the typed message, presence and notification feeds on top of a Broker.
type Channels struct {
	broker Broker
	logger zerolog.Logger
}

// NewChannels wraps the broker with typed publish/subscribe helpers.
func NewChannels(broker Broker, logger zerolog.Logger) *Channels {
	return &Channels{
		broker: broker,
		logger: logger.With().Str("component", "realtime_channels").Logger(),
	}
}

// Broker returns the underlying broker.
func (c *Channels) Broker() Broker {
	return c.broker
}

// SubscribeMessages delivers every message inserted into the conversation.
func (c *Channels) SubscribeMessages(conversationID string, onMessage func(dto.MessageResponse)) Subscription {
	return c.broker.Subscribe(MessageTopic(conversationID), func(event Event) {
		var message dto.MessageResponse
		if !c.decode(event, &message) {
			return
		}
		onMessage(message)
	})
}

// SubscribePresence delivers every change to the user's presence row.
func (c *Channels) SubscribePresence(userID string, onChange func(dto.PresenceResponse)) Subscription {
	return c.broker.Subscribe(PresenceTopic(userID), func(event Event) {
		var presence dto.PresenceResponse
		if !c.decode(event, &presence) {
			return
		}
		onChange(presence)
	})
}

// SubscribeNotifications delivers notifications created for the user.
func (c *Channels) SubscribeNotifications(userID string, onNotification func(dto.NotificationResponse)) Subscription {
	return c.broker.Subscribe(NotificationTopic(userID), func(event Event) {
		var notification dto.NotificationResponse
		if !c.decode(event, &notification) {
			return
		}
		onNotification(notification)
	})
}

// PublishMessage announces a newly stored message.
func (c *Channels) PublishMessage(ctx context.Context, message dto.MessageResponse) error {
	return c.broker.Publish(ctx, MessageTopic(message.ConversationID), KindMessageCreated, message)
}

// PublishPresence announces a presence change.
func (c *Channels) PublishPresence(ctx context.Context, presence dto.PresenceResponse) error {
	return c.broker.Publish(ctx, PresenceTopic(presence.UserID), KindPresenceUpdated, presence)
}

// PublishNotification announces a newly stored notification.
func (c *Channels) PublishNotification(ctx context.Context, notification dto.NotificationResponse) error {
	return c.broker.Publish(ctx, NotificationTopic(notification.UserID), KindNotificationCreated, notification)
}

func (c *Channels) decode(event Event, target interface{}) bool {
	if err := json.Unmarshal(event.Payload, target); err != nil {
		c.logger.Warn().Err(err).Str("topic", event.Topic).Msg("failed to decode realtime payload")
		return false
	}
	return true
}
