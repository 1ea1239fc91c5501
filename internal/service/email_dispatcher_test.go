package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type kafkaWriterStub struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (k *kafkaWriterStub) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if k.err != nil {
		return k.err
	}
	k.messages = append(k.messages, msgs...)
	return nil
}

func (k *kafkaWriterStub) Close() error {
	k.closed = true
	return nil
}

func TestKafkaEmailDispatcherKeysByRecipient(t *testing.T) {
	writer := &kafkaWriterStub{}
	dispatcher := newKafkaEmailDispatcher(writer, testLogger())

	err := dispatcher.SendEmail(context.Background(), EmailMessage{To: "Bob@Example.com", Subject: "New message", Text: "hi"})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)
	require.Equal(t, "bob@example.com", string(writer.messages[0].Key))

	var payload EmailMessage
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &payload))
	require.Equal(t, "New message", payload.Subject)
	require.False(t, payload.SentAt.IsZero())

	require.NoError(t, dispatcher.Close())
	require.True(t, writer.closed)
}

func TestKafkaEmailDispatcherErrors(t *testing.T) {
	writer := &kafkaWriterStub{err: errors.New("broker unreachable")}
	dispatcher := newKafkaEmailDispatcher(writer, testLogger())

	require.ErrorIs(t, dispatcher.SendEmail(context.Background(), EmailMessage{Subject: "x"}), ErrEmailRecipientMissing)
	require.EqualError(t, dispatcher.SendEmail(context.Background(), EmailMessage{To: "a@b.c"}), "broker unreachable")
}

func TestLogEmailDispatcherRequiresRecipient(t *testing.T) {
	dispatcher := NewLogEmailDispatcher(testLogger())
	require.ErrorIs(t, dispatcher.SendEmail(context.Background(), EmailMessage{}), ErrEmailRecipientMissing)
	require.NoError(t, dispatcher.SendEmail(context.Background(), EmailMessage{To: "a@b.c", Subject: "hi"}))
	require.Equal(t, "a***@b.c", maskEmailAddress("a@b.c"))
}
