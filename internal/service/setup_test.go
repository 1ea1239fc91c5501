package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/linkup-messaging-api/internal/database"
	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/realtime"
	"github.com/noah-isme/linkup-messaging-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func asUser(id string) context.Context {
	return ContextWithIdentity(context.Background(), Identity{ID: id, Email: id + "@example.com", Role: "user"})
}

func asAdmin(id string) context.Context {
	return ContextWithIdentity(context.Background(), Identity{ID: id, Email: id + "@example.com", Role: "admin"})
}

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type emailStub struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (e *emailStub) SendEmail(ctx context.Context, message EmailMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, message)
	return nil
}

func (e *emailStub) Sent() []EmailMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]EmailMessage(nil), e.sent...)
}

// messagingSuite wires every service against one in-memory database and a local broker.
type messagingSuite struct {
	db               *gorm.DB
	channels         *realtime.Channels
	email            *emailStub
	conversations    ConversationService
	messages         MessageService
	meetings         MeetingService
	notifications    NotificationService
	presence         PresenceService
	conversationRepo repository.ConversationRepository
	meetingRepo      repository.MeetingRepository
}

func newMessagingSuite(t *testing.T) *messagingSuite {
	t.Helper()
	email := &emailStub{}
	suite := newMessagingSuiteWithEmail(t, email)
	suite.email = email
	return suite
}

func newMessagingSuiteWithEmail(t *testing.T, email EmailDispatcher) *messagingSuite {
	t.Helper()
	db := setupServiceTestDB(t)
	logger := testLogger()
	validate := validator.New()

	channels := realtime.NewChannels(realtime.NewBroker(realtime.Options{}, logger), logger)

	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	meetingRepo := repository.NewMeetingRepository(db)

	notifications := NewNotificationService(NotificationDependencies{
		Notifications: repository.NewNotificationRepository(db),
		Preferences:   repository.NewNotificationPreferenceRepository(db),
		Messages:      messageRepo,
		Profiles:      repository.NewProfileRepository(db),
		Channels:      channels,
		Email:         email,
		Validator:     validate,
	}, logger)
	fanout := NewMessageFanout(channels, notifications, logger)

	messages := NewMessageService(MessageDependencies{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Meetings:      meetingRepo,
		Fanout:        fanout,
		Validator:     validate,
	}, logger)

	return &messagingSuite{
		db:       db,
		channels: channels,
		conversations: NewConversationService(ConversationDependencies{
			Conversations: conversationRepo,
			Messages:      messageRepo,
			Fanout:        fanout,
			Validator:     validate,
		}, logger),
		messages:         messages,
		meetings:         NewMeetingService(meetingRepo, conversationRepo, messages, validate, logger),
		notifications:    notifications,
		presence:         NewPresenceService(repository.NewPresenceRepository(db), channels, PresenceOptions{}, logger),
		conversationRepo: conversationRepo,
		meetingRepo:      meetingRepo,
	}
}

func (s *messagingSuite) open(t *testing.T, from, to string, initial string) string {
	t.Helper()
	req := dto.CreateConversationRequest{OtherUserID: to}
	if initial != "" {
		req.InitialMessage = &initial
	}
	resp, err := s.conversations.CreateOrGet(asUser(from), req)
	require.NoError(t, err)
	return resp.ConversationID
}

type failingStorage struct{}

func (failingStorage) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	return "", errors.New("bucket offline")
}
