package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/realtime"
	"github.com/noah-isme/linkup-messaging-api/internal/repository"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestPresenceReadsStaleHeartbeatAsOffline(t *testing.T) {
	db := setupServiceTestDB(t)
	clock := &manualClock{now: time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)}
	tracker := NewPresenceService(repository.NewPresenceRepository(db), nil, PresenceOptions{
		StaleAfter: time.Minute,
		Clock:      clock.Now,
	}, testLogger())

	updated, err := tracker.SetOnline(asUser("alice"), true)
	require.NoError(t, err)
	require.True(t, updated.Online)

	clock.Advance(30 * time.Second)
	presence, err := tracker.Get(asUser("bob"), "alice")
	require.NoError(t, err)
	require.True(t, presence.Online)

	clock.Advance(2 * time.Minute)
	presence, err = tracker.Get(asUser("bob"), "alice")
	require.NoError(t, err)
	require.True(t, presence.IsOnline, "stored flag is untouched")
	require.False(t, presence.Online)

	_, err = tracker.SetOnline(asUser("alice"), true)
	require.NoError(t, err)
	presence, err = tracker.Get(asUser("bob"), "alice")
	require.NoError(t, err)
	require.True(t, presence.Online)
	require.True(t, clock.Now().Equal(presence.LastSeenAt))
}

func TestPresenceUnknownUserIsOffline(t *testing.T) {
	db := setupServiceTestDB(t)
	tracker := NewPresenceService(repository.NewPresenceRepository(db), nil, PresenceOptions{}, testLogger())

	presence, err := tracker.Get(asUser("bob"), "ghost")
	require.NoError(t, err)
	require.Equal(t, "ghost", presence.UserID)
	require.False(t, presence.Online)

	_, err = tracker.SetOnline(t.Context(), true)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestPresenceChangesArePublished(t *testing.T) {
	db := setupServiceTestDB(t)
	channels := realtime.NewChannels(realtime.NewBroker(realtime.Options{}, testLogger()), testLogger())
	tracker := NewPresenceService(repository.NewPresenceRepository(db), channels, PresenceOptions{}, testLogger())

	changes := make(chan dto.PresenceResponse, 2)
	sub := channels.SubscribePresence("alice", func(presence dto.PresenceResponse) {
		changes <- presence
	})
	defer sub.Unsubscribe()

	_, err := tracker.SetOnline(asUser("alice"), true)
	require.NoError(t, err)
	_, err = tracker.SetOnline(asUser("alice"), false)
	require.NoError(t, err)

	for _, want := range []bool{true, false} {
		select {
		case change := <-changes:
			require.Equal(t, want, change.IsOnline)
		case <-time.After(2 * time.Second):
			t.Fatal("presence change not delivered")
		}
	}
}
