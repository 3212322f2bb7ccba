package chat

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"travelchat-backend/internal/domain"
	"travelchat-backend/internal/middleware"
	"travelchat-backend/internal/service/chat"
	"travelchat-backend/internal/service/presence"
	"travelchat-backend/pkg/response"
)

// Handler handles chat HTTP requests
type Handler struct {
	chatService *chat.Service
	tracker     *presence.Tracker
}

// NewHandler creates a new chat handler
func NewHandler(chatService *chat.Service, tracker *presence.Tracker) *Handler {
	return &Handler{
		chatService: chatService,
		tracker:     tracker,
	}
}

// SendMessageRequest is the body of a send
type SendMessageRequest struct {
	domain.MessageCreate
}

// TypingIndicatorRequest represents typing indicator request
type TypingIndicatorRequest struct {
	ConversationID string `json:"conversation_id" binding:"required,uuid"`
	IsTyping       bool   `json:"is_typing"`
}

// FlagMessageRequest represents flag message request
type FlagMessageRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// SendMessage handles sending a new message
// POST /v1/conversations/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	senderID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	// Header wins over body so retries from generic HTTP clients dedupe too
	idempotencyKey := c.GetHeader("Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = req.IdempotencyKey
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), &chat.SendMessageInput{
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderRole:     middleware.GetRole(c),
		Type:           req.Type,
		Content:        req.Content,
		Attachments:    req.Attachments,
		ReplyToID:      req.ReplyToID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, msg.Redacted())
}

// GetMessages returns one page of conversation history
// GET /v1/conversations/:id/messages?limit=50&cursor=...&direction=backward
func (h *Handler) GetMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			response.ValidationError(c, "Invalid limit")
			return
		}
	}

	page, err := h.chatService.History(c.Request.Context(), &chat.HistoryInput{
		ConversationID: conversationID,
		ReaderID:       userID,
		Cursor:         c.Query("cursor"),
		Direction:      domain.HistoryDirection(c.Query("direction")),
		Limit:          limit,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// MarkMessageRead acknowledges one message
// POST /v1/messages/:id/read
func (h *Handler) MarkMessageRead(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid message ID")
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	receipt, err := h.chatService.MarkRead(c.Request.Context(), messageID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message_id":      receipt.MessageID,
		"conversation_id": receipt.ConversationID,
		"read_at":         receipt.ReadAt,
	})
}

// MarkConversationRead acknowledges every unread message of a conversation
// POST /v1/conversations/:id/read
func (h *Handler) MarkConversationRead(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	marked, err := h.chatService.MarkConversationRead(c.Request.Context(), conversationID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"marked": marked,
	})
}

// FlagMessage raises a message for moderator review
// POST /v1/messages/:id/flag
func (h *Handler) FlagMessage(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid message ID")
		return
	}

	var req FlagMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	msg, err := h.chatService.FlagMessage(c.Request.Context(), messageID, userID, middleware.GetRole(c), req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, msg.Redacted())
}

// HandleTypingIndicator handles typing indicator updates
// POST /v1/typing
func (h *Handler) HandleTypingIndicator(c *gin.Context) {
	var req TypingIndicatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	if req.IsTyping {
		err = h.chatService.StartTyping(c.Request.Context(), conversationID, userID)
	} else {
		err = h.chatService.StopTyping(c.Request.Context(), conversationID, userID)
	}
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Typing indicator sent",
	})
}

// UpdatePresence lets clients without a live socket announce themselves
// POST /v1/presence
func (h *Handler) UpdatePresence(c *gin.Context) {
	var req struct {
		Online bool `json:"online"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if req.Online {
		h.tracker.SetOnline(c.Request.Context(), userID)
	} else {
		h.tracker.SetOffline(c.Request.Context(), userID)
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Presence updated",
	})
}

// GetPresence reports whether a user is online on this replica
// GET /v1/presence/:user_id
func (h *Handler) GetPresence(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	p := domain.Presence{UserID: userID, Online: h.tracker.IsOnline(userID)}
	if lastSeen, ok := h.tracker.LastSeen(userID); ok {
		p.LastSeen = lastSeen
	}
	response.Success(c, http.StatusOK, p)
}

// EraseMyMessages deletes every message the caller sent, plus their notifications
// DELETE /v1/me/messages
func (h *Handler) EraseMyMessages(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	result, err := h.chatService.EraseUserMessages(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}
