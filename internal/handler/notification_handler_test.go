package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/realtime"
)

func publishPayload(userID, kind, title string) map[string]interface{} {
	return map[string]interface{}{
		"user_id": userID,
		"type":    kind,
		"title":   title,
		"message": "Open the app to see more",
	}
}

func TestNotificationHandler_PublishRequiresAdmin(t *testing.T) {
	env := newAPIEnv(t, envOptions{})

	expect(t, env.do(t, http.MethodPost, "/api/v1/admin/notifications", "alice", publishPayload("bob", "events", "Meetup")), fiber.StatusForbidden, nil)

	var result dto.NotificationPublishResult
	expect(t, env.do(t, http.MethodPost, "/api/v1/admin/notifications", "admin-1", publishPayload("bob", "events", "<i>Meetup</i> tonight")), fiber.StatusCreated, &result)
	require.True(t, result.InApp)
	require.NotNil(t, result.Notification)
	require.Equal(t, "Meetup tonight", result.Notification.Title)

	body := expect(t, env.do(t, http.MethodPost, "/api/v1/admin/notifications", "admin-1", map[string]string{"user_id": "bob"}), fiber.StatusBadRequest, nil)
	require.Equal(t, "required", body.Details["title"])

	expect(t, env.do(t, http.MethodPost, "/api/v1/admin/notifications", "admin-1", publishPayload("bob", "events", "<script>x</script>")), fiber.StatusBadRequest, nil)
}

func TestNotificationHandler_Lifecycle(t *testing.T) {
	env := newAPIEnv(t, envOptions{})

	var first, second dto.NotificationPublishResult
	expect(t, env.do(t, http.MethodPost, "/api/v1/admin/notifications", "admin-1", publishPayload("bob", "events", "First")), fiber.StatusCreated, &first)
	expect(t, env.do(t, http.MethodPost, "/api/v1/admin/notifications", "admin-1", publishPayload("bob", "marketplace", "Second")), fiber.StatusCreated, &second)

	var list []dto.NotificationResponse
	expect(t, env.do(t, http.MethodGet, "/api/v1/notifications?limit=10", "bob", nil), fiber.StatusOK, &list)
	require.Len(t, list, 2)
	require.Equal(t, "Second", list[0].Title)

	expect(t, env.do(t, http.MethodGet, "/api/v1/notifications?limit=abc", "bob", nil), fiber.StatusBadRequest, nil)
	expect(t, env.do(t, http.MethodGet, "/api/v1/notifications", "alice", nil), fiber.StatusOK, &list)
	require.Empty(t, list)

	var counts dto.UnreadCountResponse
	expect(t, env.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "bob", nil), fiber.StatusOK, &counts)
	require.Equal(t, int64(2), counts.Notifications)

	var updated dto.NotificationResponse
	expect(t, env.do(t, http.MethodPatch, "/api/v1/notifications/"+first.Notification.ID+"/read", "bob", nil), fiber.StatusOK, &updated)
	require.True(t, updated.IsRead)
	require.NotNil(t, updated.ReadAt)
	expect(t, env.do(t, http.MethodPatch, "/api/v1/notifications/"+first.Notification.ID+"/read", "alice", nil), fiber.StatusNotFound, nil)

	expect(t, env.do(t, http.MethodGet, "/api/v1/notifications?unread=true", "bob", nil), fiber.StatusOK, &list)
	require.Len(t, list, 1)
	require.Equal(t, second.Notification.ID, list[0].ID)

	var readAll struct {
		Updated int64 `json:"updated"`
	}
	expect(t, env.do(t, http.MethodPost, "/api/v1/notifications/read-all", "bob", nil), fiber.StatusOK, &readAll)
	require.Equal(t, int64(1), readAll.Updated)

	expect(t, env.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "bob", nil), fiber.StatusOK, &counts)
	require.Equal(t, int64(0), counts.Notifications)

	expect(t, env.do(t, http.MethodDelete, "/api/v1/notifications/"+second.Notification.ID, "alice", nil), fiber.StatusNotFound, nil)
	expect(t, env.do(t, http.MethodDelete, "/api/v1/notifications/"+second.Notification.ID, "bob", nil), fiber.StatusNoContent, nil)
	expect(t, env.do(t, http.MethodGet, "/api/v1/notifications", "bob", nil), fiber.StatusOK, &list)
	require.Len(t, list, 1)
}

func TestNotificationHandler_Preferences(t *testing.T) {
	env := newAPIEnv(t, envOptions{})

	var prefs dto.NotificationPreferencesResponse
	expect(t, env.do(t, http.MethodGet, "/api/v1/notifications/preferences", "bob", nil), fiber.StatusOK, &prefs)
	require.True(t, prefs.InAppEvents)
	require.True(t, prefs.EmailMessages)

	expect(t, env.do(t, http.MethodPut, "/api/v1/notifications/preferences", "bob", map[string]bool{"in_app_events": false}), fiber.StatusOK, &prefs)
	require.False(t, prefs.InAppEvents)
	require.True(t, prefs.InAppMarketplace)

	var result dto.NotificationPublishResult
	expect(t, env.do(t, http.MethodPost, "/api/v1/admin/notifications", "admin-1", publishPayload("bob", "events", "Muted")), fiber.StatusAccepted, &result)
	require.False(t, result.InApp)
	require.Nil(t, result.Notification)
}

func TestNotificationHandler_StreamDeliversNotifications(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	addr := env.listen(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/v1/notifications/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, "bob", "user"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, ": keep-alive"))

	require.Eventually(t, func() bool {
		return env.channels.Broker().SubscriberCount(realtime.NotificationTopic("bob")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	expect(t, env.do(t, http.MethodPost, "/api/v1/admin/notifications", "admin-1", publishPayload("bob", "events", "Live")), fiber.StatusCreated, nil)

	var event, data string
	for event == "" || data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}

	require.Equal(t, "notification", event)
	var notification dto.NotificationResponse
	require.NoError(t, json.Unmarshal([]byte(data), &notification))
	require.Equal(t, "Live", notification.Title)
	require.Equal(t, "bob", notification.UserID)
}
