package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"travelchat-backend/internal/domain"
	"travelchat-backend/internal/middleware"
	"travelchat-backend/internal/service/chat"
	"travelchat-backend/pkg/response"
)

// Handler handles admin HTTP requests
type Handler struct {
	chatService *chat.Service
}

// NewHandler creates a new admin handler
func NewHandler(chatService *chat.Service) *Handler {
	return &Handler{
		chatService: chatService,
	}
}

// ModerateMessageRequest resolves a flagged message
type ModerateMessageRequest struct {
	Status string `json:"status" binding:"required,oneof=APPROVED REMOVED"`
}

// SystemMessageRequest represents a system message posted into a conversation
type SystemMessageRequest struct {
	Content string `json:"content" binding:"required,max=10000"`
}

// RequireAdmin rejects callers without the SUPER_ADMIN role
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := middleware.GetUserID(c); !ok {
			response.Unauthorized(c, "Not authenticated")
			c.Abort()
			return
		}

		if middleware.GetRole(c) != domain.RoleSuperAdmin {
			response.Forbidden(c, "Admin privileges required")
			c.Abort()
			return
		}

		c.Next()
	}
}

// ModerateMessage records a moderator's resolution of a message
// POST /v1/admin/messages/:id/moderate
func (h *Handler) ModerateMessage(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid message ID")
		return
	}

	var req ModerateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	moderatorID, _ := middleware.GetUserID(c)
	msg, err := h.chatService.ModerateMessage(c.Request.Context(), messageID, moderatorID,
		middleware.GetRole(c), domain.ModerationStatus(req.Status))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, msg.Redacted())
}

// PostSystemMessage appends a SYSTEM message to a conversation
// POST /v1/admin/conversations/:id/system-messages
func (h *Handler) PostSystemMessage(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	var req SystemMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	msg, err := h.chatService.PostSystemMessage(c.Request.Context(), conversationID, req.Content)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, msg)
}

// EraseUserMessages runs data erasure on behalf of a user
// DELETE /v1/admin/users/:user_id/messages
func (h *Handler) EraseUserMessages(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	result, err := h.chatService.EraseUserMessages(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}
