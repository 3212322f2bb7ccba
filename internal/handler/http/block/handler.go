package block

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"travelchat-backend/internal/middleware"
	"travelchat-backend/internal/service/moderation"
	"travelchat-backend/pkg/response"
)

// Handler handles block list HTTP requests
type Handler struct {
	moderationService *moderation.Service
}

// NewHandler creates a new block handler
func NewHandler(moderationService *moderation.Service) *Handler {
	return &Handler{
		moderationService: moderationService,
	}
}

// BlockUserRequest represents block user request
type BlockUserRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
	Reason string `json:"reason" binding:"max=500"`
}

// GetBlockedUsers returns the caller's block list
// GET /v1/blocks
func (h *Handler) GetBlockedUsers(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	blocks, err := h.moderationService.ListBlocked(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"blocked_users": blocks,
		"total":         len(blocks),
	})
}

// BlockUser stops another user from messaging the caller
// POST /v1/blocks
func (h *Handler) BlockUser(c *gin.Context) {
	var req BlockUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	targetID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	block, err := h.moderationService.Block(c.Request.Context(), userID, targetID, req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, block)
}

// UnblockUser lifts a block. Unblocking someone who is not blocked succeeds.
// DELETE /v1/blocks/:user_id
func (h *Handler) UnblockUser(c *gin.Context) {
	targetID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.moderationService.Unblock(c.Request.Context(), userID, targetID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "User unblocked",
	})
}
