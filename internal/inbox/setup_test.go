package inbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/linkup-messaging-api/internal/database"
	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/realtime"
	"github.com/noah-isme/linkup-messaging-api/internal/repository"
	"github.com/noah-isme/linkup-messaging-api/internal/service"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type inboxEnv struct {
	db            *gorm.DB
	clock         *testClock
	channels      *realtime.Channels
	conversations service.ConversationService
	messages      service.MessageService
	meetings      service.MeetingService
	presence      service.PresenceService
	notifications service.NotificationService
	backend       *LocalBackend
}

func newInboxEnv(t *testing.T) *inboxEnv {
	t.Helper()
	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	logger := zerolog.Nop()
	validate := validator.New()
	clock := &testClock{now: time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)}
	channels := realtime.NewChannels(realtime.NewBroker(realtime.Options{}, logger), logger)

	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	meetingRepo := repository.NewMeetingRepository(db)

	notifications := service.NewNotificationService(service.NotificationDependencies{
		Notifications: repository.NewNotificationRepository(db),
		Preferences:   repository.NewNotificationPreferenceRepository(db),
		Messages:      messageRepo,
		Profiles:      repository.NewProfileRepository(db),
		Channels:      channels,
		Validator:     validate,
	}, logger)
	fanout := service.NewMessageFanout(channels, notifications, logger)

	messages := service.NewMessageService(service.MessageDependencies{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Meetings:      meetingRepo,
		Fanout:        fanout,
		Validator:     validate,
	}, logger)
	conversations := service.NewConversationService(service.ConversationDependencies{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Fanout:        fanout,
		Validator:     validate,
	}, logger)
	meetings := service.NewMeetingService(meetingRepo, conversationRepo, messages, validate, logger)
	presence := service.NewPresenceService(repository.NewPresenceRepository(db), channels, service.PresenceOptions{
		StaleAfter: 2 * DefaultHeartbeat,
		Clock:      clock.Now,
	}, logger)

	return &inboxEnv{
		db:            db,
		clock:         clock,
		channels:      channels,
		conversations: conversations,
		messages:      messages,
		meetings:      meetings,
		presence:      presence,
		notifications: notifications,
		backend:       NewLocalBackend(conversations, messages, meetings, presence, channels),
	}
}

func as(userID string) context.Context {
	return service.ContextWithIdentity(context.Background(), service.Identity{ID: userID, Email: userID + "@example.com"})
}

func (e *inboxEnv) open(t *testing.T, from, to string, req dto.CreateConversationRequest) string {
	t.Helper()
	req.OtherUserID = to
	resp, err := e.conversations.CreateOrGet(as(from), req)
	require.NoError(t, err)
	return resp.ConversationID
}

func (e *inboxEnv) send(t *testing.T, from, conversationID, content string) dto.MessageResponse {
	t.Helper()
	message, err := e.messages.Send(as(from), conversationID, dto.SendMessageRequest{Content: content})
	require.NoError(t, err)
	return message
}

type recordingNavigator struct {
	mu        sync.Mutex
	locations []string
}

func (n *recordingNavigator) Replace(location string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.locations = append(n.locations, location)
}

func (n *recordingNavigator) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.locations) == 0 {
		return ""
	}
	return n.locations[len(n.locations)-1]
}

// manualTicker fires only when the test says so and drops ticks once stopped.
type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() { m.stopped.Store(true) }

type manualTickers struct {
	mu      sync.Mutex
	created []*manualTicker
}

func (f *manualTickers) New(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticker := &manualTicker{ch: make(chan time.Time)}
	f.created = append(f.created, ticker)
	return ticker
}

func (f *manualTickers) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// Tick fires the newest ticker and reports whether a loop received it.
func (f *manualTickers) Tick() bool {
	f.mu.Lock()
	if len(f.created) == 0 {
		f.mu.Unlock()
		return false
	}
	ticker := f.created[len(f.created)-1]
	f.mu.Unlock()

	if ticker.stopped.Load() {
		return false
	}
	select {
	case ticker.ch <- time.Now():
		return true
	case <-time.After(500 * time.Millisecond):
		return false
	}
}
