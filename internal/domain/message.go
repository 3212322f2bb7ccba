package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType is the discriminant of a message variant
type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeReply  MessageType = "REPLY"
	MessageTypeSystem MessageType = "SYSTEM"
)

// ModerationStatus records how a moderator resolved a message
type ModerationStatus string

const (
	ModerationNone     ModerationStatus = ""
	ModerationApproved ModerationStatus = "APPROVED"
	ModerationRemoved  ModerationStatus = "REMOVED"
)

// Valid reports whether s is a resolution a moderator may apply
func (s ModerationStatus) Valid() bool {
	return s == ModerationApproved || s == ModerationRemoved
}

const (
	MaxContentLength = 10000
	MaxAttachments   = 10
)

// SystemSenderID is the sender of SYSTEM messages
var SystemSenderID = uuid.Nil

// Message represents a chat message entity
// Maps to Cassandra messages table, partitioned by (conversation_id, bucket)
type Message struct {
	MessageID        uuid.UUID               `json:"message_id" cql:"message_id"`
	ConversationID   uuid.UUID               `json:"conversation_id" cql:"conversation_id"`
	SenderID         uuid.UUID               `json:"sender_id" cql:"sender_id"`
	SenderRole       Role                    `json:"sender_role" cql:"sender_role"`
	Type             MessageType             `json:"type" cql:"message_type"`
	Content          string                  `json:"content" cql:"content"`
	Attachments      []string                `json:"attachments" cql:"attachments"`
	ReplyToID        *uuid.UUID              `json:"reply_to_id,omitempty" cql:"reply_to_id"`
	IsRead           bool                    `json:"is_read"`
	ReadBy           []uuid.UUID             `json:"read_by"`
	ReadAt           map[uuid.UUID]time.Time `json:"read_at"`
	IsFlagged        bool                    `json:"is_flagged" cql:"is_flagged"`
	FlagReason       string                  `json:"flag_reason,omitempty" cql:"flag_reason"`
	FlaggedBy        *uuid.UUID              `json:"flagged_by,omitempty" cql:"flagged_by"`
	FlaggedAt        *time.Time              `json:"flagged_at,omitempty" cql:"flagged_at"`
	ModerationStatus ModerationStatus        `json:"moderation_status,omitempty" cql:"moderation_status"`
	ModeratedBy      *uuid.UUID              `json:"moderated_by,omitempty" cql:"moderated_by"`
	ModeratedAt      *time.Time              `json:"moderated_at,omitempty" cql:"moderated_at"`
	CreatedAt        time.Time               `json:"created_at" cql:"created_at"`
}

// Before reports whether m sorts before other in conversation order
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.MessageID.String() < other.MessageID.String()
}

// HasReadBy reports whether userID has acknowledged the message
func (m *Message) HasReadBy(userID uuid.UUID) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Redacted returns the view clients get: removed messages lose their body
func (m *Message) Redacted() *Message {
	if m.ModerationStatus != ModerationRemoved {
		return m
	}
	cp := *m
	cp.Content = ""
	cp.Attachments = []string{}
	return &cp
}

// Clone returns a deep copy safe to hand out of a store
func (m *Message) Clone() *Message {
	cp := *m
	cp.Attachments = append([]string{}, m.Attachments...)
	cp.ReadBy = append([]uuid.UUID{}, m.ReadBy...)
	cp.ReadAt = make(map[uuid.UUID]time.Time, len(m.ReadAt))
	for k, v := range m.ReadAt {
		cp.ReadAt[k] = v
	}
	return &cp
}

// ReadReceipt is the outcome of a reader acknowledging a message
type ReadReceipt struct {
	MessageID      uuid.UUID
	ConversationID uuid.UUID
	ReaderID       uuid.UUID
	ReadAt         time.Time
	Applied        bool // false when the reader had already read the message
}

// MessageCursor positions history pagination at (created_at, message_id)
type MessageCursor struct {
	CreatedAt time.Time `json:"t"`
	MessageID uuid.UUID `json:"id"`
}

// HistoryDirection selects the walk order of history
type HistoryDirection string

const (
	HistoryForward  HistoryDirection = "forward"  // oldest to newest
	HistoryBackward HistoryDirection = "backward" // newest to oldest
)

// HistoryQuery selects one page of conversation history
type HistoryQuery struct {
	ConversationID uuid.UUID
	After          *MessageCursor // exclusive bound in walk direction
	Direction      HistoryDirection
	Limit          int
}

// MessagePage is one page of conversation history
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor string     `json:"next_cursor,omitempty"`
	HasMore    bool       `json:"has_more"`
}

// MessageCreate represents data needed to send a message
type MessageCreate struct {
	Type           MessageType `json:"type" binding:"omitempty,oneof=TEXT REPLY"`
	Content        string      `json:"content" binding:"max=10000"`
	Attachments    []string    `json:"attachments" binding:"max=10,dive,required"`
	ReplyToID      *uuid.UUID  `json:"reply_to_id,omitempty"`
	IdempotencyKey string      `json:"idempotency_key,omitempty" binding:"max=128"`
}
