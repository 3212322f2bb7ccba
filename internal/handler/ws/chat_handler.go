package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"travelchat-backend/internal/domain"
	"travelchat-backend/internal/middleware"
	"travelchat-backend/internal/service/chat"
	"travelchat-backend/internal/service/realtime"
	"travelchat-backend/pkg/constants"
	apperrors "travelchat-backend/pkg/errors"
	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/metrics"
	"travelchat-backend/pkg/response"
)

// Frame is an inbound client frame
type Frame struct {
	Type           string   `json:"type" validate:"required,oneof=typing_start typing_stop message_read chat_message"`
	ConversationID string   `json:"conversationId" validate:"omitempty,uuid"`
	MessageID      string   `json:"messageId" validate:"omitempty,uuid"`
	Content        string   `json:"content" validate:"max=10000"`
	Attachments    []string `json:"attachments" validate:"max=10,dive,required"`
	ReplyToID      string   `json:"replyToId" validate:"omitempty,uuid"`
	ClientID       string   `json:"clientId" validate:"max=128"`
}

// ChatOptions tunes the per-connection limits
type ChatOptions struct {
	SessionBuffer  int
	FrameRate      float64
	FrameBurst     int
	AllowedOrigins []string
}

// ChatHandler upgrades authenticated requests to the per-user event stream
type ChatHandler struct {
	hub         *realtime.Hub
	chatService *chat.Service
	upgrader    websocket.Upgrader
	validate    *validator.Validate
	opts        ChatOptions
	metrics     *metrics.Metrics
}

// Client is one websocket connection bound to a hub session
type Client struct {
	handler *ChatHandler
	conn    *websocket.Conn
	session *realtime.Session
	replies chan []byte
	limiter *rate.Limiter
	role    domain.Role
}

// NewChatHandler creates the websocket endpoint handler
func NewChatHandler(hub *realtime.Hub, chatService *chat.Service, opts ChatOptions, m *metrics.Metrics) *ChatHandler {
	if opts.FrameRate <= 0 {
		opts.FrameRate = 10
	}
	if opts.FrameBurst <= 0 {
		opts.FrameBurst = 20
	}

	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		allowed[o] = true
	}

	return &ChatHandler{
		hub:         hub,
		chatService: chatService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Native apps send no Origin
				return origin == "" || len(allowed) == 0 || allowed[origin]
			},
		},
		validate: validator.New(),
		opts:     opts,
		metrics:  m,
	}
}

// ServeWS handles GET /v1/ws/chat
func (h *ChatHandler) ServeWS(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	// Keep the request's log fields; session work must not stop with the request
	ctx := context.WithoutCancel(c.Request.Context())

	client := &Client{
		handler: h,
		conn:    conn,
		session: realtime.NewSession(userID, h.opts.SessionBuffer),
		replies: make(chan []byte, 16),
		limiter: rate.NewLimiter(rate.Limit(h.opts.FrameRate), h.opts.FrameBurst),
		role:    middleware.GetRole(c),
	}

	h.hub.Register(ctx, client.session)
	go client.writePump()
	client.readPump(ctx)
}

// readPump reads frames until the connection drops, then unregisters the session
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.handler.hub.Unregister(ctx, c.session)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.FromContext(ctx).Warn("WebSocket read error", zap.Error(err))
				c.handler.metrics.RecordWebSocketError("read")
			}
			return
		}

		if !c.limiter.Allow() {
			c.handler.metrics.RecordWebSocketError("rate_limited")
			c.reply(apperrors.RateLimitExceededError())
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.reply(apperrors.ValidationError("Invalid frame"))
			continue
		}
		c.handler.metrics.RecordWebSocketMessage(frame.Type, "inbound")

		if err := c.handle(ctx, &frame); err != nil {
			c.reply(err)
		}
	}
}

// handle runs one validated frame against the chat service
func (c *Client) handle(ctx context.Context, frame *Frame) error {
	if err := c.handler.validate.Struct(frame); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			return apperrors.ValidationError(response.ValidationMessage(errs))
		}
		return apperrors.ValidationError("Invalid frame")
	}

	userID := c.session.UserID
	switch frame.Type {
	case domain.EventMessageRead:
		if frame.MessageID == "" {
			return apperrors.MissingFieldError("messageId")
		}
		_, err := c.handler.chatService.MarkRead(ctx, uuid.MustParse(frame.MessageID), userID)
		return err
	}

	if frame.ConversationID == "" {
		return apperrors.MissingFieldError("conversationId")
	}
	conversationID := uuid.MustParse(frame.ConversationID)

	switch frame.Type {
	case domain.EventTypingStart:
		return c.handler.chatService.StartTyping(ctx, conversationID, userID)
	case domain.EventTypingStop:
		return c.handler.chatService.StopTyping(ctx, conversationID, userID)
	default:
		input := &chat.SendMessageInput{
			ConversationID: conversationID,
			SenderID:       userID,
			SenderRole:     c.role,
			Type:           domain.MessageTypeText,
			Content:        frame.Content,
			Attachments:    frame.Attachments,
			IdempotencyKey: frame.ClientID,
		}
		if frame.ReplyToID != "" {
			replyTo := uuid.MustParse(frame.ReplyToID)
			input.Type = domain.MessageTypeReply
			input.ReplyToID = &replyTo
		}
		_, err := c.handler.chatService.SendMessage(ctx, input)
		return err
	}
}

// reply sends an error frame to this connection only. Replies are dropped when the queue is full.
func (c *Client) reply(err error) {
	event := domain.ErrorEvent{Type: domain.EventError, Code: string(apperrors.ErrCodeInternal), Message: "An unexpected error occurred"}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		event.Code = string(appErr.Code)
		event.Message = appErr.Message
	}

	payload, mErr := json.Marshal(event)
	if mErr != nil {
		return
	}
	select {
	case c.replies <- payload:
	default:
	}
}

// writePump writes queued frames and pings until the session closes
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.session.Outbound():
			if err := c.write(websocket.TextMessage, payload); err != nil {
				return
			}
			c.handler.metrics.RecordWebSocketMessage("event", "outbound")

		case payload := <-c.replies:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.session.Done():
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(messageType int, payload []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
	return c.conn.WriteMessage(messageType, payload)
}
