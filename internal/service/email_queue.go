package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/observability"
)

var (
	// ErrEmailQueueFull indicates the delivery backlog is at capacity and the email was dropped.
	ErrEmailQueueFull = errors.New("email queue is full")
	// ErrEmailQueueClosed indicates the queue no longer accepts emails.
	ErrEmailQueueClosed = errors.New("email queue is closed")
)

// EmailQueueOptions tunes the background delivery of emails.
type EmailQueueOptions struct {
	Capacity    int
	Workers     int
	SendTimeout time.Duration
}

type queuedEmail struct {
	ctx     context.Context
	message EmailMessage
}

// EmailQueue is an EmailDispatcher that accepts emails without waiting on the
// delivery channel. Workers hand them to the wrapped dispatcher in the background.
type EmailQueue struct {
	next    EmailDispatcher
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan queuedEmail
	wg     sync.WaitGroup
}

// NewEmailQueue starts the workers draining into next.
func NewEmailQueue(next EmailDispatcher, opts EmailQueueOptions, logger zerolog.Logger) *EmailQueue {
	if opts.Capacity <= 0 {
		opts.Capacity = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}

	q := &EmailQueue{
		next:    next,
		timeout: opts.SendTimeout,
		logger:  logger.With().Str("component", "email_queue").Logger(),
		jobs:    make(chan queuedEmail, opts.Capacity),
	}
	q.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go q.work()
	}
	return q
}

// SendEmail enqueues the email and returns immediately. The caller's context
// values travel with the email but its cancellation does not.
func (q *EmailQueue) SendEmail(ctx context.Context, message EmailMessage) error {
	if strings.TrimSpace(message.To) == "" {
		return ErrEmailRecipientMissing
	}
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrEmailQueueClosed
	}

	select {
	case q.jobs <- queuedEmail{ctx: context.WithoutCancel(ctx), message: message}:
		return nil
	default:
		observability.EmailDispatch().WithLabelValues("dropped").Inc()
		return ErrEmailQueueFull
	}
}

// Close stops accepting emails and waits for the backlog to drain.
func (q *EmailQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *EmailQueue) work() {
	defer q.wg.Done()
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(job.ctx, q.timeout)
		if err := q.next.SendEmail(ctx, job.message); err != nil {
			q.logger.Warn().Err(err).Str("to", maskEmailAddress(job.message.To)).Msg("email delivery failed")
		}
		cancel()
	}
}
