package push

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"travelchat-backend/internal/middleware"
	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/push"
	"travelchat-backend/pkg/response"
)

// Handler handles push notification HTTP requests
type Handler struct {
	pushService *push.Service
}

// NewHandler creates a new push notification handler
func NewHandler(pushService *push.Service) *Handler {
	return &Handler{
		pushService: pushService,
	}
}

// RegisterTokenRequest represents request to register a push token
type RegisterTokenRequest struct {
	Token    string         `json:"token" binding:"required,max=4096"`
	Type     push.TokenType `json:"type" binding:"required,oneof=fcm apns"`
	DeviceID string         `json:"device_id" binding:"max=256"`
	Platform string         `json:"platform" binding:"omitempty,oneof=ios android web"`
}

// UnregisterTokenRequest represents request to unregister a push token
type UnregisterTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// RegisterToken registers a device token for the authenticated user
// POST /v1/push/tokens
func (h *Handler) RegisterToken(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	token := &push.Token{
		UserID:   userID,
		Token:    req.Token,
		Type:     req.Type,
		DeviceID: req.DeviceID,
		Platform: req.Platform,
	}

	if err := h.pushService.RegisterToken(c.Request.Context(), token); err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to register push token", zap.Error(err))
		response.InternalError(c, "Failed to register token")
		return
	}

	logger.FromContext(c.Request.Context()).Info("Push token registered",
		zap.String("token_type", string(req.Type)),
		zap.String("platform", req.Platform))

	response.Success(c, http.StatusOK, gin.H{
		"message":  "Token registered successfully",
		"token_id": token.ID,
	})
}

// UnregisterToken removes one of the caller's device tokens
// DELETE /v1/push/tokens
func (h *Handler) UnregisterToken(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req UnregisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	if err := h.pushService.UnregisterToken(c.Request.Context(), userID, req.Token); err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to unregister push token", zap.Error(err))
		response.InternalError(c, "Failed to unregister token")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Token unregistered successfully",
	})
}

// UnregisterAllTokens removes every device token of the caller, used on logout everywhere
// DELETE /v1/push/tokens/all
func (h *Handler) UnregisterAllTokens(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.pushService.UnregisterAllTokens(c.Request.Context(), userID); err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to unregister push tokens", zap.Error(err))
		response.InternalError(c, "Failed to unregister tokens")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "All tokens unregistered successfully",
	})
}
