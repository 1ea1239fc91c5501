package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/service"
)

const (
	// DefaultPollInterval is how often unread counters are refreshed without live events.
	DefaultPollInterval = 30 * time.Second
	recentNotifications = 20
)

// NotificationCenterOptions tunes polling.
type NotificationCenterOptions struct {
	PollInterval time.Duration
	NewTicker    TickerFactory
	OnChange     func(dto.UnreadCountResponse)
}

// NotificationCenter keeps the bell and inbox badge counters current from three sources:
// a poll timer, the live notification stream and explicit Refresh calls.
type NotificationCenter struct {
	notifications service.NotificationService
	interval      time.Duration
	newTicker     TickerFactory
	onChange      func(dto.UnreadCountResponse)
	logger        zerolog.Logger

	mu      sync.Mutex
	counts  dto.UnreadCountResponse
	recent  []dto.NotificationResponse
	started bool
	stop    chan struct{}
	done    chan struct{}
	cleanup func()
}

// NewNotificationCenter constructs an idle center. Call Start to begin refreshing.
func NewNotificationCenter(notifications service.NotificationService, opts NotificationCenterOptions, logger zerolog.Logger) *NotificationCenter {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	newTicker := opts.NewTicker
	if newTicker == nil {
		newTicker = NewClockTicker
	}
	return &NotificationCenter{
		notifications: notifications,
		interval:      interval,
		newTicker:     newTicker,
		onChange:      opts.OnChange,
		logger:        logger.With().Str("component", "notification_center").Logger(),
	}
}

// Start loads the counters, subscribes to live notifications and starts polling.
func (c *NotificationCenter) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.refreshQuietly(ctx)

	var stream <-chan dto.NotificationResponse
	live, cleanup, err := c.notifications.Subscribe(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("live notifications unavailable, polling only")
	} else {
		stream = live
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	ticker := c.newTicker(c.interval)

	c.mu.Lock()
	c.stop = stop
	c.done = done
	c.cleanup = cleanup
	c.mu.Unlock()

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				c.refreshQuietly(ctx)
			case notification, ok := <-stream:
				if !ok {
					stream = nil
					continue
				}
				c.remember(notification)
				c.refreshQuietly(ctx)
			}
		}
	}()
}

// Refresh reloads the counters and recent notifications now.
func (c *NotificationCenter) Refresh(ctx context.Context) error {
	notifications, err := c.notifications.UnreadCount(ctx)
	if err != nil {
		return err
	}
	messages, err := c.notifications.UnreadMessageCount(ctx)
	if err != nil {
		return err
	}
	recent, err := c.notifications.List(ctx, recentNotifications, 0)
	if err != nil {
		return err
	}

	counts := dto.UnreadCountResponse{Notifications: notifications, Messages: messages}
	c.mu.Lock()
	c.counts = counts
	c.recent = recent
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(counts)
	}
	return nil
}

// MarkRead marks one notification read and refreshes the counters.
func (c *NotificationCenter) MarkRead(ctx context.Context, id string) error {
	if _, err := c.notifications.MarkRead(ctx, id); err != nil {
		return err
	}
	return c.Refresh(ctx)
}

// MarkAllRead clears the notification badge.
func (c *NotificationCenter) MarkAllRead(ctx context.Context) error {
	if _, err := c.notifications.MarkAllRead(ctx); err != nil {
		return err
	}
	return c.Refresh(ctx)
}

// Counts returns the last known unread counters.
func (c *NotificationCenter) Counts() dto.UnreadCountResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

// Recent returns the most recent notifications, newest first.
func (c *NotificationCenter) Recent() []dto.NotificationResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dto.NotificationResponse(nil), c.recent...)
}

// Close stops polling and releases the live subscription. Safe to call more than once.
func (c *NotificationCenter) Close() {
	c.mu.Lock()
	stop, done, cleanup := c.stop, c.done, c.cleanup
	c.stop, c.done, c.cleanup = nil, nil, nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	if cleanup != nil {
		cleanup()
	}
}

func (c *NotificationCenter) refreshQuietly(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to refresh unread counters")
	}
}

func (c *NotificationCenter) remember(notification dto.NotificationResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.recent {
		if existing.ID == notification.ID {
			return
		}
	}
	c.recent = append([]dto.NotificationResponse{notification}, c.recent...)
	if len(c.recent) > recentNotifications {
		c.recent = c.recent[:recentNotifications]
	}
}
