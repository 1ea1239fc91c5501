package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/linkup-messaging-api/internal/service"
)

// DefaultHeartbeat is the interval between presence refreshes while visible.
const DefaultHeartbeat = 30 * time.Second

// PresenceState is the lifecycle state of a presence session.
type PresenceState int

const (
	PresenceUninitialized PresenceState = iota
	PresenceOnline
	PresencePaused
	PresenceOffline
)

func (s PresenceState) String() string {
	switch s {
	case PresenceOnline:
		return "online"
	case PresencePaused:
		return "paused"
	case PresenceOffline:
		return "offline"
	default:
		return "uninitialized"
	}
}

// PresenceSessionOptions tunes the heartbeat.
type PresenceSessionOptions struct {
	Heartbeat time.Duration
	NewTicker TickerFactory
}

// PresenceSession keeps the current user's presence row fresh while the view is visible.
// It is owned by the composition root: Start on sign-in, Hide/Show on visibility changes,
// Stop on sign-out or teardown.
type PresenceSession struct {
	presence  service.PresenceService
	heartbeat time.Duration
	newTicker TickerFactory
	logger    zerolog.Logger

	mu    sync.Mutex
	state PresenceState
	stop  chan struct{}
	done  chan struct{}
}

// NewPresenceSession constructs an uninitialized session.
func NewPresenceSession(presence service.PresenceService, opts PresenceSessionOptions, logger zerolog.Logger) *PresenceSession {
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	newTicker := opts.NewTicker
	if newTicker == nil {
		newTicker = NewClockTicker
	}
	return &PresenceSession{
		presence:  presence,
		heartbeat: heartbeat,
		newTicker: newTicker,
		logger:    logger.With().Str("component", "presence_session").Logger(),
	}
}

// State reports the current lifecycle state.
func (p *PresenceSession) State() PresenceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start marks the user online and begins the heartbeat. Only valid from Uninitialized.
func (p *PresenceSession) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PresenceUninitialized {
		return
	}
	p.state = PresenceOnline
	p.beat(ctx, true)
	p.startLoop(ctx)
}

// Hide pauses the heartbeat while the view is not visible.
func (p *PresenceSession) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PresenceOnline {
		return
	}
	p.stopLoop()
	p.state = PresencePaused
}

// Show refreshes presence immediately and resumes the heartbeat.
func (p *PresenceSession) Show(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PresencePaused {
		return
	}
	p.state = PresenceOnline
	p.beat(ctx, true)
	p.startLoop(ctx)
}

// Stop halts the heartbeat and marks the user offline. Safe in every state; a session
// that never started goes straight to Offline without touching storage.
func (p *PresenceSession) Stop(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case PresenceOffline:
		return
	case PresenceUninitialized:
		p.state = PresenceOffline
		return
	}
	p.stopLoop()
	p.state = PresenceOffline
	p.beat(ctx, false)
}

func (p *PresenceSession) startLoop(ctx context.Context) {
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go loop(p.newTicker(p.heartbeat), p.stop, p.done, func() {
		p.beat(ctx, true)
	})
}

func (p *PresenceSession) stopLoop() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.stop = nil
	p.done = nil
}

// beat never fails the caller: presence is advisory.
func (p *PresenceSession) beat(ctx context.Context, online bool) {
	if _, err := p.presence.SetOnline(ctx, online); err != nil {
		p.logger.Warn().Err(err).Bool("online", online).Msg("presence heartbeat failed")
	}
}
