package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/linkup-messaging-api/internal/observability"
)

const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["source", "topic", "kind", "payload", "sent_at"],
  "properties": {
    "source": {"type": "string", "minLength": 1},
    "topic": {"type": "string", "pattern": "^(messages|presence|notifications):.+$"},
    "kind": {"type": "string", "minLength": 1},
    "payload": {"type": "object"},
    "sent_at": {"type": "string", "format": "date-time"}
  }
}`

var envelope = jsonschema.MustCompileString("realtime-envelope.json", envelopeSchema)

// ValidateEnvelope checks a raw bus payload against the event envelope schema.
func ValidateEnvelope(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return envelope.Validate(doc)
}

func (b *broker) forward(ctx context.Context, event Event) error {
	if (b.redis == nil || b.redisChannel == "") && (b.nats == nil || b.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if b.redis != nil && b.redisChannel != "" {
		if err := b.redis.Publish(ctx, b.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if b.nats != nil && b.natsSubject != "" {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (b *broker) consumeRedis(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			b.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		b.handleRemote([]byte(msg.Payload))
	}
}

func (b *broker) consumeNATS(ctx context.Context) {
	// Every node needs every event, so this is a plain subscription rather than a queue group.
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handleRemote(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats realtime subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
		}
	}()
}

func (b *broker) handleRemote(data []byte) {
	if err := ValidateEnvelope(data); err != nil {
		b.logger.Warn().Err(err).Msg("invalid realtime event envelope")
		return
	}

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		b.logger.Warn().Err(err).Msg("invalid realtime event payload")
		return
	}

	if event.Source == b.nodeID {
		return
	}

	observability.RealtimeEvents().WithLabelValues(channelOf(event.Topic), "remote").Inc()
	b.dispatch(event)
}
