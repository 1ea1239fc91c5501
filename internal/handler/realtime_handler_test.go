package handler_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
	"github.com/noah-isme/linkup-messaging-api/internal/handler"
	"github.com/noah-isme/linkup-messaging-api/internal/realtime"
)

func dialRealtime(t *testing.T, addr, user string, query url.Values) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	endpoint := url.URL{Scheme: "ws", Host: addr, Path: "/api/v1/realtime/ws", RawQuery: query.Encode()}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token(t, user, "user"))
	return websocket.DefaultDialer.Dial(endpoint.String(), header)
}

func readFrame(t *testing.T, conn *websocket.Conn) handler.RealtimeFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame handler.RealtimeFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestRealtimeHandler_PushesMessagesAndPresence(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	id := env.open(t, "alice", "bob")
	addr := env.listen(t)

	conn, _, err := dialRealtime(t, addr, "bob", url.Values{"conversation_id": {id}, "presence_user_id": {"alice"}})
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return env.channels.Broker().SubscriberCount(realtime.MessageTopic(id)) == 1 &&
			env.channels.Broker().SubscriberCount(realtime.PresenceTopic("alice")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	expect(t, env.do(t, http.MethodPost, "/api/v1/conversations/"+id+"/messages", "alice", map[string]string{"content": "ping"}), fiber.StatusCreated, nil)

	frame := readFrame(t, conn)
	require.Equal(t, realtime.KindMessageCreated, frame.Kind)
	require.Equal(t, realtime.MessageTopic(id), frame.Topic)
	var message dto.MessageResponse
	require.NoError(t, json.Unmarshal(frame.Payload, &message))
	require.Equal(t, "ping", message.Content)
	require.Equal(t, "alice", message.SenderID)

	expect(t, env.do(t, http.MethodPut, "/api/v1/presence", "alice", map[string]bool{"online": true}), fiber.StatusOK, nil)

	frame = readFrame(t, conn)
	require.Equal(t, realtime.KindPresenceUpdated, frame.Kind)
	var presence dto.PresenceResponse
	require.NoError(t, json.Unmarshal(frame.Payload, &presence))
	require.Equal(t, "alice", presence.UserID)
	require.True(t, presence.Online)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return env.channels.Broker().SubscriberCount(realtime.MessageTopic(id)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRealtimeHandler_RejectsOutsidersBeforeUpgrade(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	id := env.open(t, "alice", "bob")
	addr := env.listen(t)

	_, resp, err := dialRealtime(t, addr, "mallory", url.Values{"conversation_id": {id}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	_, resp, err = dialRealtime(t, addr, "bob", url.Values{})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	require.Equal(t, 0, env.channels.Broker().SubscriberCount(realtime.MessageTopic(id)))
}

func TestRealtimeHandler_RequiresUpgrade(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	resp := env.do(t, http.MethodGet, "/api/v1/realtime/ws?presence_user_id=alice", "bob", nil)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
