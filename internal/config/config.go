package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the messaging API.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	RealtimeChannel        string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	AttachmentMaxMB        int
	PresenceHeartbeat      time.Duration
	PresenceStaleAfter     time.Duration
	NotificationPoll       time.Duration
	StreamKeepAlive        time.Duration
	KafkaBrokers           []string
	KafkaEmailTopic        string
	MessageRateLimit       int
	MessageRateWindow      time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MESSAGING")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Linkup Messaging API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("realtime.channel", "linkup")
	v.SetDefault("cloudinary.folder", "chat-attachments")
	v.SetDefault("attachments.max_mb", 10)
	v.SetDefault("presence.heartbeat", "30s")
	v.SetDefault("presence.stale_after", "")
	v.SetDefault("notifications.poll_interval", "30s")
	v.SetDefault("notifications.stream_keepalive", "30s")
	v.SetDefault("kafka.email_topic", "notification-emails")
	v.SetDefault("messages.rate_limit", 30)
	v.SetDefault("messages.rate_window", "1m")

	heartbeat, err := parseDuration(v.GetString("presence.heartbeat"), 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid presence heartbeat: %w", err)
	}

	staleAfter, err := parseDuration(v.GetString("presence.stale_after"), 2*heartbeat)
	if err != nil {
		return Config{}, fmt.Errorf("invalid presence stale_after: %w", err)
	}

	poll, err := parseDuration(v.GetString("notifications.poll_interval"), 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid notifications poll interval: %w", err)
	}

	keepAlive, err := parseDuration(v.GetString("notifications.stream_keepalive"), 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid notifications stream keepalive: %w", err)
	}

	rateWindow, err := parseDuration(v.GetString("messages.rate_window"), time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid messages rate window: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		RealtimeChannel:        v.GetString("realtime.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		AttachmentMaxMB:        v.GetInt("attachments.max_mb"),
		PresenceHeartbeat:      heartbeat,
		PresenceStaleAfter:     staleAfter,
		NotificationPoll:       poll,
		StreamKeepAlive:        keepAlive,
		KafkaBrokers:           splitList(v.GetString("kafka.brokers")),
		KafkaEmailTopic:        v.GetString("kafka.email_topic"),
		MessageRateLimit:       v.GetInt("messages.rate_limit"),
		MessageRateWindow:      rateWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.AttachmentMaxMB <= 0 {
		cfg.AttachmentMaxMB = 10
	}

	if cfg.MessageRateLimit <= 0 {
		cfg.MessageRateLimit = 30
	}

	return cfg, nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return fallback, nil
	}

	return parsed, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
