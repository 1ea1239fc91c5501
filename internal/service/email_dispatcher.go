package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/noah-isme/linkup-messaging-api/internal/observability"
)

// ErrEmailRecipientMissing indicates an email was requested without an address.
var ErrEmailRecipientMissing = errors.New("email recipient is required")

// EmailMessage is the fire-and-forget payload handed to the email delivery worker.
type EmailMessage struct {
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sent_at"`
}

// EmailDispatcher hands emails to an out-of-band delivery channel.
type EmailDispatcher interface {
	SendEmail(ctx context.Context, message EmailMessage) error
}

// LogEmailDispatcher only logs emails. Used when no broker is configured.
type LogEmailDispatcher struct {
	logger zerolog.Logger
}

// NewLogEmailDispatcher constructs a logging dispatcher.
func NewLogEmailDispatcher(logger zerolog.Logger) *LogEmailDispatcher {
	return &LogEmailDispatcher{logger: logger.With().Str("component", "email_dispatcher").Logger()}
}

// SendEmail logs the email and reports success.
func (l *LogEmailDispatcher) SendEmail(ctx context.Context, message EmailMessage) error {
	if strings.TrimSpace(message.To) == "" {
		return ErrEmailRecipientMissing
	}
	l.logger.Info().Str("to", maskEmailAddress(message.To)).Str("subject", message.Subject).Msg("email queued for delivery")
	observability.EmailDispatch().WithLabelValues("logged").Inc()
	return nil
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmailDispatcher publishes emails onto a Kafka topic consumed by the mail worker.
type KafkaEmailDispatcher struct {
	writer kafkaWriter
	logger zerolog.Logger
}

// NewKafkaEmailDispatcher builds a dispatcher writing to topic on the given brokers.
func NewKafkaEmailDispatcher(brokers []string, topic string, logger zerolog.Logger) *KafkaEmailDispatcher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
	return newKafkaEmailDispatcher(writer, logger)
}

func newKafkaEmailDispatcher(writer kafkaWriter, logger zerolog.Logger) *KafkaEmailDispatcher {
	return &KafkaEmailDispatcher{
		writer: writer,
		logger: logger.With().Str("component", "email_dispatcher").Logger(),
	}
}

// SendEmail writes the email keyed by recipient so retries for one address stay ordered.
func (k *KafkaEmailDispatcher) SendEmail(ctx context.Context, message EmailMessage) error {
	if strings.TrimSpace(message.To) == "" {
		return ErrEmailRecipientMissing
	}
	if message.SentAt.IsZero() {
		message.SentAt = time.Now().UTC()
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strings.ToLower(message.To)),
		Value: payload,
		Time:  message.SentAt,
	})
	if err != nil {
		observability.EmailDispatch().WithLabelValues("failed").Inc()
		return err
	}

	observability.EmailDispatch().WithLabelValues("queued").Inc()
	k.logger.Debug().Str("subject", message.Subject).Msg("email published to kafka")
	return nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaEmailDispatcher) Close() error {
	return k.writer.Close()
}
