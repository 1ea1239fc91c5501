package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/linkup-messaging-api/internal/config"
	"github.com/noah-isme/linkup-messaging-api/internal/database"
	"github.com/noah-isme/linkup-messaging-api/internal/handler"
	"github.com/noah-isme/linkup-messaging-api/internal/middleware"
	"github.com/noah-isme/linkup-messaging-api/internal/realtime"
	"github.com/noah-isme/linkup-messaging-api/internal/repository"
	"github.com/noah-isme/linkup-messaging-api/internal/router"
	"github.com/noah-isme/linkup-messaging-api/internal/service"
)

const testJWTSecret = "handler-test-secret"

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Details map[string]string `json:"details"`
}

type storageStub struct {
	mu    sync.Mutex
	calls int
}

func (s *storageStub) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return "https://cdn.example.com/" + name, nil
}

type envOptions struct {
	rateLimit  int
	storage    service.FileStorage
	probeError error
}

// apiEnv serves the full router over sqlite and a local broker.
type apiEnv struct {
	app      *fiber.App
	db       *gorm.DB
	channels *realtime.Channels
}

func newAPIEnv(t *testing.T, opts envOptions) *apiEnv {
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
		Email:         service.NewLogEmailDispatcher(logger),
		Validator:     validate,
	}, logger)
	fanout := service.NewMessageFanout(channels, notifications, logger)

	var uploads service.UploadService
	if opts.storage != nil {
		uploads = service.NewUploadService(opts.storage, repository.NewUploadRepository(db), 1, logger)
	}

	conversations := service.NewConversationService(service.ConversationDependencies{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Fanout:        fanout,
		Validator:     validate,
	}, logger)
	messages := service.NewMessageService(service.MessageDependencies{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Meetings:      meetingRepo,
		Uploads:       uploads,
		Fanout:        fanout,
		Validator:     validate,
	}, logger)
	meetings := service.NewMeetingService(meetingRepo, conversationRepo, messages, validate, logger)
	presence := service.NewPresenceService(repository.NewPresenceRepository(db), channels, service.PresenceOptions{StaleAfter: time.Minute}, logger)

	rateLimit := opts.rateLimit
	if rateLimit == 0 {
		rateLimit = 1000
	}

	probes := []handler.HealthProbe{{
		Name: "database",
		Check: func(ctx context.Context) error {
			if opts.probeError != nil {
				return opts.probeError
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}

	cfg := config.Config{AppName: "Linkup Messaging API", AppEnv: "test", JWTSecret: testJWTSecret}
	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ConversationHandler: handler.NewConversationHandler(conversations, logger),
		MessageHandler:      handler.NewMessageHandler(messages, middleware.RateLimit("messages", rateLimit, time.Minute, nil), logger),
		MeetingHandler:      handler.NewMeetingHandler(meetings, logger),
		PresenceHandler:     handler.NewPresenceHandler(presence, logger),
		NotificationHandler: handler.NewNotificationHandler(notifications, logger, 50*time.Millisecond),
		RealtimeHandler:     handler.NewRealtimeHandler(channels, conversations, logger),
		HealthProbes:        probes,
		JWTMiddleware:       middleware.JWTProtected(testJWTSecret),
	})

	return &apiEnv{app: app, db: db, channels: channels}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": userID + "@example.com",
		"role":  role,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

// do performs an authenticated JSON request; an empty user sends no token.
func (e *apiEnv) do(t *testing.T, method, path, user string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		role := "user"
		if strings.HasPrefix(user, "admin") {
			role = "admin"
		}
		req.Header.Set("Authorization", "Bearer "+token(t, user, role))
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

// expect asserts the status and decodes the envelope's data into target when non-nil.
func expect(t *testing.T, resp *http.Response, status int, target interface{}) envelope {
	t.Helper()
	var body envelope
	if resp.StatusCode == fiber.StatusNoContent {
		require.Equal(t, status, resp.StatusCode)
		return body
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, status, resp.StatusCode, body.Message)
	if target != nil {
		require.NoError(t, json.Unmarshal(body.Data, target))
	}
	return body
}

func (e *apiEnv) open(t *testing.T, from, to string) string {
	t.Helper()
	var created struct {
		ConversationID string `json:"conversation_id"`
	}
	resp := e.do(t, http.MethodPost, "/api/v1/conversations", from, map[string]interface{}{"other_user_id": to})
	require.Contains(t, []int{fiber.StatusCreated, fiber.StatusOK}, resp.StatusCode)
	var body envelope
	decodeResponse(t, resp, &body)
	require.NoError(t, json.Unmarshal(body.Data, &created))
	return created.ConversationID
}

// listen serves the app on a loopback port for streaming clients.
func (e *apiEnv) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = e.app.Listener(ln) }()
	t.Cleanup(func() { _ = e.app.ShutdownWithTimeout(time.Second) })
	return ln.Addr().String()
}
