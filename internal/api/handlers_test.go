package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agriclip/chat-service/internal/auth"
	"github.com/agriclip/chat-service/internal/classifier"
	"github.com/agriclip/chat-service/internal/config"
	"github.com/agriclip/chat-service/internal/models"
	"github.com/agriclip/chat-service/internal/repository"
	"github.com/agriclip/chat-service/internal/service"
)

const testSecret = "testsecret"

type testApp struct {
	app     *fiber.App
	store   *repository.MemoryStore
	uploads *repository.MemoryUploads
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := zap.NewNop().Sugar()
	store := repository.NewMemoryStore()
	uploads := repository.NewMemoryUploads()
	tracker := classifier.NewTracker(classifier.NewFakeBackend(nil, 0), time.Hour, log)
	svc := service.NewChatService(store, uploads, tracker, nil, nil, log)

	cfg := &config.Config{}
	cfg.App.Rate = 10000
	app := NewServer(cfg, svc, uploads, auth.NewHS256Validator(testSecret), nil, log)
	return &testApp{app: app, store: store, uploads: uploads}
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func request(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)

	var parsed map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &parsed))
	}
	return resp, parsed
}

func TestHealthIsPublic(t *testing.T) {
	ta := newTestApp(t)
	resp, body := request(t, ta.app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestChatRequiresAuth(t *testing.T) {
	ta := newTestApp(t)

	resp, body := request(t, ta.app, http.MethodGet, "/chat/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	resp, _ = request(t, ta.app, http.MethodGet, "/chat/sessions", "Bearer not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendMessageCreatesSession(t *testing.T) {
	ta := newTestApp(t)
	token := bearerToken(t, "u1")

	resp, body := request(t, ta.app, http.MethodPost, "/chat/message", token, fiber.Map{
		"content": fiber.Map{"text": "hello"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Message sent successfully", body["message"])

	data := body["data"].(map[string]interface{})
	sessionID, _ := data["sessionId"].(string)
	_, err := uuid.Parse(sessionID)
	assert.NoError(t, err)
}

func TestSendMessageRejectsBadSessionID(t *testing.T) {
	ta := newTestApp(t)
	token := bearerToken(t, "u1")

	resp, body := request(t, ta.app, http.MethodPost, "/chat/message", token, fiber.Map{
		"sessionId": "not-a-uuid",
		"content":   fiber.Map{"text": "hello"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Validation failed", body["message"])
	assert.NotEmpty(t, body["errors"])
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	ta := newTestApp(t)
	token := bearerToken(t, "u1")

	resp, body := request(t, ta.app, http.MethodPost, "/chat/message", token, fiber.Map{
		"content": fiber.Map{"text": ""},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestHistoryRoundTrip(t *testing.T) {
	ta := newTestApp(t)
	token := bearerToken(t, "u1")

	_, body := request(t, ta.app, http.MethodPost, "/chat/message", token, fiber.Map{
		"content": fiber.Map{"text": "first"},
	})
	sessionID := body["data"].(map[string]interface{})["sessionId"].(string)

	resp, body := request(t, ta.app, http.MethodGet, "/chat/history/"+sessionID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, sessionID, data["sessionId"])
	assert.Len(t, data["messages"], 1)
}

func TestHistoryRejectsMalformedSessionID(t *testing.T) {
	ta := newTestApp(t)
	token := bearerToken(t, "u1")

	resp, body := request(t, ta.app, http.MethodGet, "/chat/history/abc123", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid session ID format", body["message"])
}

func TestEditMessageNotOwned(t *testing.T) {
	ta := newTestApp(t)
	stored, err := ta.store.Append(context.Background(), &models.Message{
		UserID:      "u2",
		SessionID:   uuid.NewString(),
		MessageType: models.MessageTypeUser,
		Content:     models.MessageContent{Text: "someone else's"},
	})
	require.NoError(t, err)

	resp, body := request(t, ta.app, http.MethodPut, "/chat/message/"+stored.ID, bearerToken(t, "u1"), fiber.Map{
		"content": fiber.Map{"text": "hijacked"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Message not found or cannot be edited", body["message"])
}

func TestAddReactionValidation(t *testing.T) {
	ta := newTestApp(t)
	stored, err := ta.store.Append(context.Background(), &models.Message{
		UserID:      "u1",
		SessionID:   uuid.NewString(),
		MessageType: models.MessageTypeAI,
		Content:     models.MessageContent{Text: "diagnosis"},
	})
	require.NoError(t, err)
	token := bearerToken(t, "u1")

	resp, _ := request(t, ta.app, http.MethodPost, "/chat/message/"+stored.ID+"/reaction", token, fiber.Map{
		"reaction": "thumbs_up",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := request(t, ta.app, http.MethodPost, "/chat/message/"+stored.ID+"/reaction", token, fiber.Map{
		"reaction": "helpful",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "helpful", data["reaction"])
}

func TestDeleteSessionValidatesID(t *testing.T) {
	ta := newTestApp(t)
	resp, _ := request(t, ta.app, http.MethodDelete, "/chat/session/nope", bearerToken(t, "u1"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClassifyEndpoints(t *testing.T) {
	ta := newTestApp(t)
	token := bearerToken(t, "u1")
	ta.uploads.Add(&models.Upload{ID: "up1", UserID: "u1", Filename: "leaf.jpg", MimeType: "image/jpeg"})

	resp, _ := request(t, ta.app, http.MethodPost, "/model/classify", token, fiber.Map{"uploadId": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := request(t, ta.app, http.MethodPost, "/model/classify", token, fiber.Map{"uploadId": "up1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "up1", data["uploadId"])

	resp, _ = request(t, ta.app, http.MethodGet, "/model/classify/up1/status", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = request(t, ta.app, http.MethodGet, "/model/classify/ghost/status", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Classification job not found", body["message"])
}
