package handler_test

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/linkup-messaging-api/internal/dto"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

func TestMessageHandler_SendListAndRead(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	id := env.open(t, "alice", "bob")
	path := "/api/v1/conversations/" + id

	var sent dto.MessageResponse
	expect(t, env.do(t, http.MethodPost, path+"/messages", "alice", map[string]string{"content": "<b>Hello</b> Bob"}), fiber.StatusCreated, &sent)
	require.Equal(t, "Hello Bob", sent.Content)
	require.Equal(t, "alice", sent.SenderID)
	require.False(t, sent.Read)

	expect(t, env.do(t, http.MethodPost, path+"/messages", "bob", map[string]interface{}{
		"body": map[string]interface{}{"kind": "localized", "key": "chat.greeting", "params": map[string]string{"name": "Alice"}},
	}), fiber.StatusCreated, nil)

	var messages []dto.MessageResponse
	expect(t, env.do(t, http.MethodGet, path+"/messages", "bob", nil), fiber.StatusOK, &messages)
	require.Len(t, messages, 2)
	require.Equal(t, sent.ID, messages[0].ID)
	require.Equal(t, dto.BodyLocalized, messages[1].Body.Kind)
	require.Equal(t, "chat.greeting", messages[1].Body.Key)

	var counts dto.UnreadCountResponse
	expect(t, env.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "bob", nil), fiber.StatusOK, &counts)
	require.Equal(t, int64(1), counts.Messages)

	var read struct {
		Updated int64 `json:"updated"`
	}
	expect(t, env.do(t, http.MethodPost, path+"/read", "bob", nil), fiber.StatusOK, &read)
	require.Equal(t, int64(1), read.Updated)
	expect(t, env.do(t, http.MethodPost, path+"/read", "bob", nil), fiber.StatusOK, &read)
	require.Equal(t, int64(0), read.Updated)

	expect(t, env.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "bob", nil), fiber.StatusOK, &counts)
	require.Equal(t, int64(0), counts.Messages)
}

func TestMessageHandler_SendErrors(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	id := env.open(t, "alice", "bob")
	path := "/api/v1/conversations/" + id + "/messages"

	expect(t, env.do(t, http.MethodPost, path, "alice", map[string]string{"content": "   "}), fiber.StatusBadRequest, nil)
	expect(t, env.do(t, http.MethodPost, path, "alice", map[string]string{"content": "hi", "message_type": "admin"}), fiber.StatusForbidden, nil)
	expect(t, env.do(t, http.MethodPost, path, "mallory", map[string]string{"content": "hi"}), fiber.StatusNotFound, nil)
	expect(t, env.do(t, http.MethodPost, "/api/v1/conversations/missing/messages", "alice", map[string]string{"content": "hi"}), fiber.StatusNotFound, nil)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(t, "alice", "user"))
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var admin dto.MessageResponse
	adminConversation := env.open(t, "admin-1", "alice")
	expect(t, env.do(t, http.MethodPost, "/api/v1/conversations/"+adminConversation+"/messages", "admin-1", map[string]string{"content": "Account notice", "message_type": "admin"}), fiber.StatusCreated, &admin)
	require.Equal(t, "admin", admin.MessageType)
}

func TestMessageHandler_DeleteOwnMessageOnly(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	id := env.open(t, "alice", "bob")
	path := "/api/v1/conversations/" + id + "/messages"

	var sent dto.MessageResponse
	expect(t, env.do(t, http.MethodPost, path, "alice", map[string]string{"content": "oops"}), fiber.StatusCreated, &sent)

	messagePath := fmt.Sprintf("%s/%d", path, sent.ID)
	expect(t, env.do(t, http.MethodDelete, messagePath, "bob", nil), fiber.StatusNotFound, nil)
	expect(t, env.do(t, http.MethodDelete, path+"/abc", "alice", nil), fiber.StatusBadRequest, nil)
	expect(t, env.do(t, http.MethodDelete, messagePath, "alice", nil), fiber.StatusNoContent, nil)

	var messages []dto.MessageResponse
	expect(t, env.do(t, http.MethodGet, path, "bob", nil), fiber.StatusOK, &messages)
	require.Empty(t, messages)
}

func TestMessageHandler_SendIsRateLimited(t *testing.T) {
	env := newAPIEnv(t, envOptions{rateLimit: 2})
	id := env.open(t, "alice", "bob")
	path := "/api/v1/conversations/" + id + "/messages"

	expect(t, env.do(t, http.MethodPost, path, "alice", map[string]string{"content": "one"}), fiber.StatusCreated, nil)
	expect(t, env.do(t, http.MethodPost, path, "alice", map[string]string{"content": "two"}), fiber.StatusCreated, nil)
	expect(t, env.do(t, http.MethodPost, path, "alice", map[string]string{"content": "three"}), fiber.StatusTooManyRequests, nil)
	expect(t, env.do(t, http.MethodPost, path, "bob", map[string]string{"content": "mine"}), fiber.StatusCreated, nil)

	expect(t, env.do(t, http.MethodGet, path, "alice", nil), fiber.StatusOK, nil)
}

func uploadRequest(t *testing.T, user, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attachments", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, user, "user"))
	return req
}

func TestMessageHandler_UploadAttachment(t *testing.T) {
	storage := &storageStub{}
	env := newAPIEnv(t, envOptions{storage: storage})

	resp, err := env.app.Test(uploadRequest(t, "alice", "Holiday Photo.PNG", pngHeader), -1)
	require.NoError(t, err)
	var uploaded dto.AttachmentUploadResponse
	expect(t, resp, fiber.StatusOK, &uploaded)
	require.Equal(t, "image", uploaded.Type)
	require.Equal(t, "https://cdn.example.com/holiday-photo.png", uploaded.URL)

	resp, err = env.app.Test(uploadRequest(t, "alice", "program.bin", []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0}), -1)
	require.NoError(t, err)
	expect(t, resp, fiber.StatusBadRequest, nil)

	resp, err = env.app.Test(uploadRequest(t, "alice", "huge.png", append(pngHeader, make([]byte, 2*1024*1024)...)), -1)
	require.NoError(t, err)
	expect(t, resp, fiber.StatusRequestEntityTooLarge, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attachments", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "alice", "user"))
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	expect(t, resp, fiber.StatusBadRequest, nil)

	require.Equal(t, 1, storage.calls)

	id := env.open(t, "alice", "bob")
	var sent dto.MessageResponse
	expect(t, env.do(t, http.MethodPost, "/api/v1/conversations/"+id+"/messages", "alice", map[string]interface{}{
		"attachments": []map[string]string{{"url": uploaded.URL, "type": uploaded.Type, "name": uploaded.Name}},
	}), fiber.StatusCreated, &sent)
	require.Equal(t, "Sent an attachment", sent.Content)
	require.NotNil(t, sent.Attachment)
	require.Equal(t, uploaded.URL, sent.Attachment.URL)
}

func TestMessageHandler_UploadWithoutStorage(t *testing.T) {
	env := newAPIEnv(t, envOptions{})

	resp, err := env.app.Test(uploadRequest(t, "alice", "photo.png", pngHeader), -1)
	require.NoError(t, err)
	expect(t, resp, fiber.StatusServiceUnavailable, nil)
}
