package notification

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"travelchat-backend/internal/middleware"
	"travelchat-backend/internal/service/notification"
	"travelchat-backend/pkg/pagination"
	"travelchat-backend/pkg/response"
)

// Handler handles notification HTTP requests
type Handler struct {
	notificationService *notification.Service
}

// NewHandler creates a new notification handler
func NewHandler(notificationService *notification.Service) *Handler {
	return &Handler{
		notificationService: notificationService,
	}
}

// GetNotifications retrieves user's notifications
// GET /v1/notifications?limit=20&offset=0&unread_only=true
func (h *Handler) GetNotifications(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	limit, err := pagination.ParseLimit(c.Query("limit"))
	if err != nil {
		response.ValidationError(c, "Invalid limit")
		return
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	unreadOnly, _ := strconv.ParseBool(c.Query("unread_only"))

	result, err := h.notificationService.GetNotifications(c.Request.Context(), userID, limit, offset, unreadOnly)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// MarkAsRead marks a notification as read
// POST /v1/notifications/:id/read
func (h *Handler) MarkAsRead(c *gin.Context) {
	notificationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid notification ID")
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.notificationService.MarkAsRead(c.Request.Context(), notificationID, userID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Notification marked as read",
	})
}

// MarkAllAsRead marks all notifications as read
// POST /v1/notifications/read-all
func (h *Handler) MarkAllAsRead(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.notificationService.MarkAllAsRead(c.Request.Context(), userID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "All notifications marked as read",
	})
}
