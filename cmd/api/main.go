package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/config"
	"github.com/noah-isme/linkup-messaging-api/internal/database"
	"github.com/noah-isme/linkup-messaging-api/internal/handler"
	"github.com/noah-isme/linkup-messaging-api/internal/middleware"
	"github.com/noah-isme/linkup-messaging-api/internal/realtime"
	"github.com/noah-isme/linkup-messaging-api/internal/repository"
	"github.com/noah-isme/linkup-messaging-api/internal/router"
	"github.com/noah-isme/linkup-messaging-api/internal/service"
	cloud "github.com/noah-isme/linkup-messaging-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	broker := realtime.NewBroker(realtime.Options{
		Redis:   redisClient,
		NATS:    natsConn,
		Channel: cfg.RealtimeChannel,
	}, logger)
	broker.Start(rootCtx)
	channels := realtime.NewChannels(broker, logger)

	var email service.EmailDispatcher = service.NewLogEmailDispatcher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaEmail := service.NewKafkaEmailDispatcher(cfg.KafkaBrokers, cfg.KafkaEmailTopic, logger)
		defer func() {
			if err := kafkaEmail.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close kafka email writer")
			}
		}()
		email = kafkaEmail
	}
	emailQueue := service.NewEmailQueue(email, service.EmailQueueOptions{}, logger)
	defer emailQueue.Close()
	email = emailQueue

	var uploads service.UploadService
	if cfg.CloudinaryCloudName != "" {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		uploads = service.NewUploadService(uploader, repository.NewUploadRepository(db), cfg.AttachmentMaxMB, logger)
	} else {
		logger.Warn().Msg("cloudinary not configured, attachment uploads disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	meetingRepo := repository.NewMeetingRepository(db)

	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Notifications: repository.NewNotificationRepository(db),
		Preferences:   repository.NewNotificationPreferenceRepository(db),
		Messages:      messageRepo,
		Profiles:      repository.NewProfileRepository(db),
		Channels:      channels,
		Email:         email,
		Validator:     validate,
	}, logger)
	fanout := service.NewMessageFanout(channels, notificationService, logger)

	conversationService := service.NewConversationService(service.ConversationDependencies{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Fanout:        fanout,
		Validator:     validate,
	}, logger)
	messageService := service.NewMessageService(service.MessageDependencies{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Meetings:      meetingRepo,
		Uploads:       uploads,
		Fanout:        fanout,
		Validator:     validate,
	}, logger)
	meetingService := service.NewMeetingService(meetingRepo, conversationRepo, messageService, validate, logger)
	presenceService := service.NewPresenceService(repository.NewPresenceRepository(db), channels, service.PresenceOptions{
		StaleAfter: cfg.PresenceStaleAfter,
	}, logger)

	var limiterStorage fiber.Storage
	if redisClient != nil {
		limiterStorage = middleware.NewRedisStorage(redisClient, cfg.RealtimeChannel+":ratelimit")
	}
	sendLimiter := middleware.RateLimit("messages", cfg.MessageRateLimit, cfg.MessageRateWindow, limiterStorage)

	probes := []handler.HealthProbe{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if redisClient != nil {
		probes = append(probes, handler.HealthProbe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.AttachmentMaxMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ConversationHandler: handler.NewConversationHandler(conversationService, logger),
		MessageHandler:      handler.NewMessageHandler(messageService, sendLimiter, logger),
		MeetingHandler:      handler.NewMeetingHandler(meetingService, logger),
		PresenceHandler:     handler.NewPresenceHandler(presenceService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.StreamKeepAlive),
		RealtimeHandler:     handler.NewRealtimeHandler(channels, conversationService, logger),
		HealthProbes:        probes,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("address", cfg.HTTPAddress()).Msg("messaging api started")
	waitForShutdown(app, cancelRoot)
}

func waitForShutdown(app *fiber.App, stopBackground context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	stopBackground()

	log.Println("server stopped")
}
