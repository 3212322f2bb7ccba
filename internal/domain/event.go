package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a logical realtime stream a session receives events on
type Channel string

const (
	ChannelMessage       Channel = "message"
	ChannelTyping        Channel = "typing"
	ChannelStatus        Channel = "status"
	ChannelMessageStatus Channel = "message_status"
	ChannelError         Channel = "error"
)

// Realtime event types
const (
	EventChatMessage = "chat_message"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
	EventUserOnline  = "user_online"
	EventUserOffline = "user_offline"
	EventMessageRead = "message_read"
	EventError       = "error"
)

// ChannelOf returns the channel an event type travels on. Sessions receive the
// bare event; the channel only labels routing and metrics.
func ChannelOf(eventType string) Channel {
	switch eventType {
	case EventChatMessage:
		return ChannelMessage
	case EventTypingStart, EventTypingStop:
		return ChannelTyping
	case EventUserOnline, EventUserOffline:
		return ChannelStatus
	case EventMessageRead:
		return ChannelMessageStatus
	default:
		return ChannelError
	}
}

// EventMessage is the message body carried by chat_message
type EventMessage struct {
	ID          uuid.UUID   `json:"id"`
	SenderID    uuid.UUID   `json:"senderId"`
	SenderRole  Role        `json:"senderRole,omitempty"`
	Content     string      `json:"content"`
	Type        MessageType `json:"type"`
	Attachments []string    `json:"attachments"`
	ReplyToID   *uuid.UUID  `json:"replyToId,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// ChatMessageEvent announces a newly accepted message
type ChatMessageEvent struct {
	Type           string       `json:"type"`
	ConversationID uuid.UUID    `json:"conversationId"`
	Message        EventMessage `json:"message"`
}

// NewChatMessageEvent builds the wire form of m
func NewChatMessageEvent(m *Message) *ChatMessageEvent {
	v := m.Redacted()
	attachments := v.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return &ChatMessageEvent{
		Type:           EventChatMessage,
		ConversationID: v.ConversationID,
		Message: EventMessage{
			ID:          v.MessageID,
			SenderID:    v.SenderID,
			SenderRole:  v.SenderRole,
			Content:     v.Content,
			Type:        v.Type,
			Attachments: attachments,
			ReplyToID:   v.ReplyToID,
			CreatedAt:   v.CreatedAt,
		},
	}
}

// TypingEvent is typing_start or typing_stop
type TypingEvent struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
}

// PresenceEvent is user_online or user_offline
type PresenceEvent struct {
	Type     string     `json:"type"`
	UserID   uuid.UUID  `json:"userId"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// MessageReadEvent is the read receipt delivered to a message's sender
type MessageReadEvent struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      uuid.UUID `json:"messageId"`
	ReadBy         uuid.UUID `json:"readBy"`
	ReadAt         time.Time `json:"readAt"`
}

// ErrorEvent reports a rejected inbound frame to the session that sent it
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Presence is a user's ephemeral online state
type Presence struct {
	UserID   uuid.UUID `json:"user_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}
