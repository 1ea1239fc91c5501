package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/observability"
)

const (
	defaultQueueSize       = 64
	defaultDeliveryTimeout = 5 * time.Second
)

// ErrEmptyTopic is returned when publishing without a topic.
var ErrEmptyTopic = errors.New("realtime topic is required")

// Event is a single change notification delivered to subscribers of a topic.
type Event struct {
	Source  string          `json:"source"`
	Topic   string          `json:"topic"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// Handler consumes events for a subscription. Handlers run on the subscription's own
// goroutine, one event at a time, and must not call Unsubscribe on their own subscription.
type Handler func(Event)

// Subscription is the handle returned by Subscribe. Unsubscribe may be called any number
// of times; once it returns the handler is never invoked again.
type Subscription interface {
	Topic() string
	Unsubscribe()
}

// Options configures cross-node fan-out. Either transport may be nil.
type Options struct {
	Redis           *redis.Client
	NATS            *nats.Conn
	Channel         string
	QueueSize       int
	DeliveryTimeout time.Duration
}

// Broker delivers events to in-process subscribers and mirrors them to other nodes.
type Broker interface {
	Subscribe(topic string, handler Handler) Subscription
	Publish(ctx context.Context, topic, kind string, payload interface{}) error
	SubscriberCount(topic string) int
	Start(ctx context.Context)
}

type broker struct {
	mu              sync.RWMutex
	topics          map[string]map[*subscription]struct{}
	redis           *redis.Client
	redisChannel    string
	nats            *nats.Conn
	natsSubject     string
	queueSize       int
	deliveryTimeout time.Duration
	logger          zerolog.Logger
	nodeID          string
}

type subscription struct {
	broker  *broker
	topic   string
	handler Handler
	queue   chan Event
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	stopped bool
}

// NewBroker constructs a broker. Call Start to begin consuming events from other nodes.
func NewBroker(opts Options, logger zerolog.Logger) Broker {
	redisChannel := ""
	natsSubject := ""
	if opts.Channel != "" {
		redisChannel = opts.Channel + ":realtime"
		natsSubject = strings.ReplaceAll(opts.Channel, ":", ".") + ".realtime"
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	timeout := opts.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	return &broker{
		topics:          make(map[string]map[*subscription]struct{}),
		redis:           opts.Redis,
		redisChannel:    redisChannel,
		nats:            opts.NATS,
		natsSubject:     natsSubject,
		queueSize:       queueSize,
		deliveryTimeout: timeout,
		logger:          logger.With().Str("component", "realtime_broker").Logger(),
		nodeID:          uuid.NewString(),
	}
}

func (b *broker) Start(ctx context.Context) {
	if b.redis != nil && b.redisChannel != "" {
		go b.consumeRedis(ctx)
	}
	if b.nats != nil && b.natsSubject != "" {
		b.consumeNATS(ctx)
	}
}

func (b *broker) Subscribe(topic string, handler Handler) Subscription {
	sub := &subscription{
		broker:  b,
		topic:   topic,
		handler: handler,
		queue:   make(chan Event, b.queueSize),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if _, ok := b.topics[topic]; !ok {
		b.topics[topic] = make(map[*subscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	b.mu.Unlock()

	observability.RealtimeSubscribers().WithLabelValues(channelOf(topic)).Inc()
	go sub.run()

	return sub
}

func (b *broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *broker) Publish(ctx context.Context, topic, kind string, payload interface{}) error {
	if strings.TrimSpace(topic) == "" {
		return ErrEmptyTopic
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := Event{
		Source:  b.nodeID,
		Topic:   topic,
		Kind:    kind,
		Payload: raw,
		SentAt:  time.Now().UTC(),
	}

	b.dispatch(event)
	observability.RealtimeEvents().WithLabelValues(channelOf(topic), "local").Inc()

	return b.forward(ctx, event)
}

func (b *broker) dispatch(event Event) {
	b.mu.RLock()
	subscribers := make([]*subscription, 0, len(b.topics[event.Topic]))
	for sub := range b.topics[event.Topic] {
		subscribers = append(subscribers, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subscribers {
		sub.enqueue(event)
	}
}

func (b *broker) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.topics[sub.topic]; ok {
		delete(subscribers, sub)
		if len(subscribers) == 0 {
			delete(b.topics, sub.topic)
		}
	}
}

func (s *subscription) Topic() string {
	return s.topic
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)

		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		observability.RealtimeSubscribers().WithLabelValues(channelOf(s.topic)).Dec()
	})
}

func (s *subscription) enqueue(event Event) {
	timer := time.NewTimer(s.broker.deliveryTimeout)
	defer timer.Stop()

	select {
	case s.queue <- event:
	case <-s.done:
	case <-timer.C:
		s.broker.logger.Warn().
			Str("topic", s.topic).
			Str("kind", event.Kind).
			Msg("dropping realtime event for stalled subscriber")
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case event := <-s.queue:
			if !s.deliver(event) {
				return
			}
		}
	}
}

func (s *subscription) deliver(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			s.broker.logger.Error().
				Interface("panic", recovered).
				Str("topic", s.topic).
				Msg("realtime handler panicked")
		}
	}()

	s.handler(event)
	return true
}

func channelOf(topic string) string {
	if idx := strings.Index(topic, ":"); idx > 0 {
		return topic[:idx]
	}
	return topic
}
