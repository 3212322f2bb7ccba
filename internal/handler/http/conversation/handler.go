package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"travelchat-backend/internal/domain"
	"travelchat-backend/internal/middleware"
	"travelchat-backend/internal/service/conversation"
	"travelchat-backend/pkg/pagination"
	"travelchat-backend/pkg/response"
)

// Handler handles conversation HTTP requests
type Handler struct {
	conversationService *conversation.Service
}

// NewHandler creates a new conversation handler
func NewHandler(conversationService *conversation.Service) *Handler {
	return &Handler{
		conversationService: conversationService,
	}
}

// CreateConversationRequest opens (or reopens) the conversation with a counterpart
type CreateConversationRequest struct {
	CounterpartID   string `json:"counterpart_id" binding:"required,uuid"`
	CounterpartRole string `json:"counterpart_role" binding:"required,oneof=CUSTOMER PROPERTY_OWNER VEHICLE_OWNER TOUR_GUIDE SUPER_ADMIN"`
	Type            string `json:"type" binding:"omitempty,oneof=CUSTOMER_PROVIDER SUPPORT"`
}

// CreateConversation finds the active conversation with the counterpart or creates it
// POST /v1/conversations
func (h *Handler) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	counterpartID, err := uuid.Parse(req.CounterpartID)
	if err != nil {
		response.ValidationError(c, "Invalid counterpart ID")
		return
	}

	convType := domain.ConversationType(req.Type)
	if convType == "" {
		convType = domain.ConversationTypeCustomerProvider
	}

	output, err := h.conversationService.FindOrCreate(c.Request.Context(), &domain.ConversationCreate{
		Type:           convType,
		ParticipantIDs: []uuid.UUID{userID, counterpartID},
		ParticipantRoles: map[uuid.UUID]domain.Role{
			userID:        middleware.GetRole(c),
			counterpartID: domain.Role(req.CounterpartRole),
		},
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	status := http.StatusOK
	if output.Created {
		status = http.StatusCreated
	}
	response.Success(c, status, output.Conversation)
}

// GetConversations lists the caller's conversations, most recent activity first
// GET /v1/conversations?limit=20&cursor=...
func (h *Handler) GetConversations(c *gin.Context) {
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

	page, err := h.conversationService.ListForUser(c.Request.Context(), userID, c.Query("cursor"), limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// GetConversation returns one conversation of the caller
// GET /v1/conversations/:id
func (h *Handler) GetConversation(c *gin.Context) {
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

	conv, err := h.conversationService.GetForParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conv)
}

// ArchiveConversation deactivates a conversation so the pair can start a new one
// POST /v1/conversations/:id/archive
func (h *Handler) ArchiveConversation(c *gin.Context) {
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

	if err := h.conversationService.Archive(c.Request.Context(), conversationID, userID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Conversation archived",
	})
}
