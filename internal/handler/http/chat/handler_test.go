package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelchat-backend/internal/domain"
	"travelchat-backend/internal/middleware"
	"travelchat-backend/internal/repository/memory"
	"travelchat-backend/internal/service/chat"
	"travelchat-backend/internal/service/conversation"
	"travelchat-backend/internal/service/moderation"
	"travelchat-backend/internal/service/notification"
	"travelchat-backend/internal/service/presence"
	"travelchat-backend/internal/service/realtime"
	"travelchat-backend/pkg/jwt"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	router        *gin.Engine
	jwt           *jwt.JWTManager
	conversations *conversation.Service
	moderation    *moderation.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conversations := conversation.NewService(memory.NewConversationRepository(), nil)
	mod := moderation.NewService(memory.NewBlockRepository())
	notifications := notification.NewService(memory.NewNotificationRepository(), nil, nil, domain.DefaultRetention)
	hub := realtime.NewHub(nil)
	dispatcher := realtime.NewDispatcher(hub, conversations, notifications, nil)
	tracker := presence.NewTracker(dispatcher)
	t.Cleanup(dispatcher.Wait)

	svc := chat.NewService(chat.Deps{
		Messages:      memory.NewMessageRepository(),
		Conversations: conversations,
		Blocks:        mod,
		Dispatcher:    dispatcher,
		Typing:        tracker,
		Locker:        memory.NewLocker(),
		Notifications: notifications,
	})

	manager := jwt.NewJWTManager("test-secret", "travelchat", time.Hour)
	h := NewHandler(svc, tracker)

	router := gin.New()
	v1 := router.Group("/v1", middleware.AuthMiddleware(manager))
	v1.POST("/conversations/:id/messages", h.SendMessage)
	v1.GET("/conversations/:id/messages", h.GetMessages)
	v1.POST("/typing", h.HandleTypingIndicator)

	return &testServer{router: router, jwt: manager, conversations: conversations, moderation: mod}
}

func (s *testServer) do(t *testing.T, method, path string, userID uuid.UUID, role domain.Role, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	token, err := s.jwt.GenerateAccessToken(userID, string(role))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func (s *testServer) openConversation(t *testing.T, customer, provider uuid.UUID) uuid.UUID {
	t.Helper()
	out, err := s.conversations.FindOrCreate(context.Background(), &domain.ConversationCreate{
		Type:           domain.ConversationTypeCustomerProvider,
		ParticipantIDs: []uuid.UUID{customer, provider},
		ParticipantRoles: map[uuid.UUID]domain.Role{
			customer: domain.RoleCustomer,
			provider: domain.RoleVehicleOwner,
		},
	})
	require.NoError(t, err)
	return out.Conversation.ConversationID
}

func TestSendMessage_Created(t *testing.T) {
	s := newTestServer(t)
	customer, provider := uuid.New(), uuid.New()
	convID := s.openConversation(t, customer, provider)

	rec, env := s.do(t, http.MethodPost, "/v1/conversations/"+convID.String()+"/messages",
		customer, domain.RoleCustomer, map[string]interface{}{"content": "Is the car available on Friday?"})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)

	var msg domain.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "Is the car available on Friday?", msg.Content)
	assert.Equal(t, domain.MessageTypeText, msg.Type)
	assert.Equal(t, customer, msg.SenderID)
}

func TestSendMessage_BlockedRendersGeneric(t *testing.T) {
	s := newTestServer(t)
	customer, provider := uuid.New(), uuid.New()
	convID := s.openConversation(t, customer, provider)

	_, err := s.moderation.Block(context.Background(), provider, customer, "spam")
	require.NoError(t, err)

	rec, env := s.do(t, http.MethodPost, "/v1/conversations/"+convID.String()+"/messages",
		customer, domain.RoleCustomer, map[string]interface{}{"content": "hello?"})

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SEND_REJECTED", env.Error.Code)
	assert.NotContains(t, strings.ToLower(env.Error.Message), "block")
}

func TestSendMessage_Validation(t *testing.T) {
	s := newTestServer(t)
	customer, provider := uuid.New(), uuid.New()
	convID := s.openConversation(t, customer, provider)

	rec, env := s.do(t, http.MethodPost, "/v1/conversations/"+convID.String()+"/messages",
		customer, domain.RoleCustomer, map[string]interface{}{"content": strings.Repeat("a", domain.MaxContentLength+1)})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/conversations/not-a-uuid/messages",
		customer, domain.RoleCustomer, map[string]interface{}{"content": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessage_NonParticipant(t *testing.T) {
	s := newTestServer(t)
	convID := s.openConversation(t, uuid.New(), uuid.New())

	rec, env := s.do(t, http.MethodPost, "/v1/conversations/"+convID.String()+"/messages",
		uuid.New(), domain.RoleCustomer, map[string]interface{}{"content": "hi"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "CONVERSATION_NOT_FOUND", env.Error.Code)
}

func TestGetMessages_Page(t *testing.T) {
	s := newTestServer(t)
	customer, provider := uuid.New(), uuid.New()
	convID := s.openConversation(t, customer, provider)

	for _, content := range []string{"one", "two", "three"} {
		rec, _ := s.do(t, http.MethodPost, "/v1/conversations/"+convID.String()+"/messages",
			customer, domain.RoleCustomer, map[string]interface{}{"content": content})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, env := s.do(t, http.MethodGet, "/v1/conversations/"+convID.String()+"/messages?limit=2",
		provider, domain.RoleVehicleOwner, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page domain.MessagePage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "one", page.Messages[0].Content)
	assert.Equal(t, "two", page.Messages[1].Content)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.NextCursor)
}

func TestTyping_RequiresParticipant(t *testing.T) {
	s := newTestServer(t)
	convID := s.openConversation(t, uuid.New(), uuid.New())

	rec, _ := s.do(t, http.MethodPost, "/v1/typing", uuid.New(), domain.RoleCustomer,
		map[string]interface{}{"conversation_id": convID.String(), "is_typing": true})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
